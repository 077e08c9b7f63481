package payload

import (
	"slices"
	"strings"
	"testing"

	"github.com/felixgeelhaar/itinerary/domain/directory"
)

func TestDataObject_FormStack(t *testing.T) {
	t.Parallel()

	d := New("doc-1", nil, "BOTTOM", "MIDDLE", "TOP")

	if got := d.CurrentForm(); got != "TOP" {
		t.Errorf("CurrentForm() = %q, want TOP", got)
	}
	if got := d.AllCurrentForms(); !slices.Equal(got, []string{"TOP", "MIDDLE", "BOTTOM"}) {
		t.Errorf("AllCurrentForms() = %v", got)
	}
	if got := d.SearchCurrentForm("BOTTOM"); got != 2 {
		t.Errorf("SearchCurrentForm(BOTTOM) = %d, want 2", got)
	}
	if got := d.SearchCurrentForm("NOPE"); got != -1 {
		t.Errorf("SearchCurrentForm(NOPE) = %d, want -1", got)
	}

	if !d.PullFormToTop("BOTTOM") {
		t.Fatal("PullFormToTop(BOTTOM) = false")
	}
	if got := d.AllCurrentForms(); !slices.Equal(got, []string{"BOTTOM", "TOP", "MIDDLE"}) {
		t.Errorf("after PullFormToTop = %v", got)
	}
	if d.PullFormToTop("NOPE") {
		t.Error("PullFormToTop(NOPE) = true, want false")
	}

	d.ReplaceCurrentForm("REPLACED")
	if got := d.CurrentForm(); got != "REPLACED" {
		t.Errorf("ReplaceCurrentForm() top = %q", got)
	}

	d.DeleteCurrentFormAt(1)
	if got := d.AllCurrentForms(); !slices.Equal(got, []string{"REPLACED", "MIDDLE"}) {
		t.Errorf("after DeleteCurrentFormAt(1) = %v", got)
	}

	if got := d.PopCurrentForm(); got != "REPLACED" {
		t.Errorf("PopCurrentForm() = %q", got)
	}
	d.PopCurrentForm()
	if got := d.PopCurrentForm(); got != "" {
		t.Errorf("PopCurrentForm() on empty = %q", got)
	}

	d.ReplaceCurrentForm(FormError)
	if d.CurrentFormSize() != 1 || d.CurrentForm() != FormError {
		t.Errorf("ReplaceCurrentForm() on empty should push, got %v", d.AllCurrentForms())
	}
}

func TestDataObject_History(t *testing.T) {
	t.Parallel()

	d := New("doc-1", nil, "UNKNOWN")
	if !d.BeforeStart() {
		t.Error("new payload should be before start")
	}
	if _, ok := d.LastPlaceVisited(); ok {
		t.Error("LastPlaceVisited() on empty history should be absent")
	}

	d.AppendHistory("UNKNOWN.UNIXFILE.ID.http://h:1/UnixFilePlace$5050", false)
	d.AppendHistory("UNKNOWN.COORD.ID.http://h:1/CoordPlace$5050", true)

	last, ok := d.LastPlaceVisited()
	if !ok {
		t.Fatal("LastPlaceVisited() absent")
	}
	if last.ServiceName != "UNIXFILE" || last.Expense != 5050 {
		t.Errorf("LastPlaceVisited() = %v", last)
	}
	if d.BeforeStart() {
		t.Error("routed payload should not be before start")
	}

	d.AppendHistory(directory.SproutKey("http://h:1/Pickup"), false)
	if !d.BeforeStart() {
		t.Error("sprout marker should put the payload before start")
	}
}

func TestDataObject_ErrorsAndParameters(t *testing.T) {
	t.Parallel()

	d := New("doc-1", []byte("hello"), "UNKNOWN")
	d.AddProcessingError("first")
	d.AddProcessingError("second")
	if got := d.ProcessingError(); !strings.Contains(got, "first\n") || !strings.Contains(got, "second\n") {
		t.Errorf("ProcessingError() = %q", got)
	}

	d.SetParameter(ParamMoveErrors, "2")
	if v, ok := d.Parameter(ParamMoveErrors); !ok || v != "2" {
		t.Errorf("Parameter() = %q, %v", v, ok)
	}
	d.DeleteParameter(ParamMoveErrors)
	if _, ok := d.Parameter(ParamMoveErrors); ok {
		t.Error("DeleteParameter() should remove the value")
	}

	d.SetBroken("bad header")
	if d.Broken() != "bad header" {
		t.Errorf("Broken() = %q", d.Broken())
	}
	if string(d.Data()) != "hello" {
		t.Errorf("Data() = %q", d.Data())
	}
	if d.ID() == "" {
		t.Error("ID() should be assigned")
	}
}
