package directory

import (
	"context"
	"slices"
	"testing"

	"github.com/felixgeelhaar/itinerary/domain/directory"
)

const host = "http://localhost:8001/"

func TestWildcardIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dataID string
		want   []string
	}{
		{
			dataID: "UNKNOWN::ID",
			want:   []string{"UNKNOWN::ID", "*::ID"},
		},
		{
			dataID: "FOO-BAR(ASCII)-BAZ::ID",
			want: []string{
				"FOO-BAR(ASCII)-BAZ::ID",
				"FOO-BAR(*)-BAZ::ID",
				"FOO-BAR(*)-*::ID",
				"FOO-*::ID",
				"*::ID",
			},
		},
		{
			dataID: "A(X)-B(Y)",
			want:   []string{"A(X)-B(Y)", "A(X)-B(*)", "A(*)-B(*)", "A(*)-*", "*"},
		},
		{
			dataID: "*::ID",
			want:   []string{"*::ID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.dataID, func(t *testing.T) {
			t.Parallel()
			if got := WildcardIDs(tt.dataID); !slices.Equal(got, tt.want) {
				t.Errorf("WildcardIDs(%q) = %v, want %v", tt.dataID, got, tt.want)
			}
		})
	}
}

func TestStatic_CheapestFirst(t *testing.T) {
	t.Parallel()

	cheap := directory.NewEntry("UNKNOWN", "CHEAP", "ID", host+"CheapPlace", 10, 50)
	dear := directory.NewEntry("UNKNOWN", "DEAR", "ID", host+"DearPlace", 20, 50)
	s := NewStatic(dear, cheap)

	got, err := s.NextKeys(context.Background(), "UNKNOWN::ID", nil, nil)
	if err != nil {
		t.Fatalf("NextKeys() error = %v", err)
	}
	if len(got) != 1 || got[0].ServiceName != "CHEAP" {
		t.Fatalf("NextKeys(nil last) = %v, want CHEAP", got)
	}

	got, _ = s.NextKeys(context.Background(), "UNKNOWN::ID", nil, got[0])
	if len(got) != 1 || got[0].ServiceName != "DEAR" {
		t.Fatalf("NextKeys(after CHEAP) = %v, want DEAR", got)
	}

	got, _ = s.NextKeys(context.Background(), "UNKNOWN::ID", nil, got[0])
	if len(got) != 0 {
		t.Errorf("NextKeys(after DEAR) = %v, want none", got)
	}
}

func TestStatic_WildcardFallback(t *testing.T) {
	t.Parallel()

	wild := directory.NewEntry("*", "DUMPER", "IO", host+"DumpPlace", 50, 50)
	s := NewStatic(wild)

	got, _ := s.NextKeys(context.Background(), "TEXT-PLAIN::IO", nil, nil)
	if len(got) != 1 || got[0].ServiceName != "DUMPER" {
		t.Errorf("NextKeys() = %v, want DUMPER", got)
	}

	got, _ = s.NextKeys(context.Background(), "TEXT-PLAIN::ID", nil, nil)
	if len(got) != 0 {
		t.Errorf("NextKeys(other stage) = %v, want none", got)
	}
}

func TestStatic_NewDataIDResetsToCheapest(t *testing.T) {
	t.Parallel()

	id := directory.NewEntry("UNKNOWN", "IDENT", "ID", host+"IdentPlace", 10, 50)
	xf := directory.NewEntry("TEXT", "XFORM", "TRANSFORM", host+"XformPlace", 10, 50)
	s := NewStatic(id, xf)

	got, _ := s.NextKeys(context.Background(), "TEXT::TRANSFORM", nil, id)
	if len(got) != 1 || got[0].ServiceName != "XFORM" {
		t.Errorf("NextKeys() = %v, want XFORM", got)
	}
}

func TestStatic_RegisterRemove(t *testing.T) {
	t.Parallel()

	e := directory.NewEntry("UNKNOWN", "IDENT", "ID", host+"IdentPlace", 10, 50)
	s := NewStatic(e)

	s.Register(directory.NewEntry("UNKNOWN", "IDENT", "ID", host+"IdentPlace", 30, 50))
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after re-register", s.Len())
	}
	if got := s.Entries()[0].Cost; got != 30 {
		t.Errorf("Cost = %d, want 30", got)
	}

	if !s.Remove(e.FullKey()) {
		t.Error("Remove() = false, want true")
	}
	if s.Remove(e.FullKey()) {
		t.Error("second Remove() = true, want false")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}
