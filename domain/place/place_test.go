package place

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/payload"
)

type countingPlace struct {
	calls int
	fail  bool
}

func (c *countingPlace) Key() string                    { return "X.COUNT.ID.http://h:1/CountPlace$5050" }
func (c *countingPlace) Name() string                   { return "CountPlace" }
func (c *countingPlace) AllowedDuration() time.Duration { return DefaultDuration }
func (c *countingPlace) Process(_ context.Context, p payload.Payload) ([]payload.Payload, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("boom")
	}
	return []payload.Payload{payload.New(p.ShortName()+"-att", nil, "CHILD")}, nil
}

type batchPlace struct {
	countingPlace
	batches int
}

func (b *batchPlace) ProcessBatch(_ context.Context, ps []payload.Payload) ([]payload.Payload, error) {
	b.batches++
	return nil, nil
}

func (b *batchPlace) AllowsEmptyForm() bool { return true }

func TestProcessAll_PerPayload(t *testing.T) {
	t.Parallel()

	p := &countingPlace{}
	batch := []payload.Payload{payload.New("a", nil, "X"), payload.New("b", nil, "X")}

	sprouts, err := ProcessAll(context.Background(), p, batch)
	if err != nil {
		t.Fatalf("ProcessAll() error = %v", err)
	}
	if p.calls != 2 {
		t.Errorf("Process calls = %d, want 2", p.calls)
	}
	if len(sprouts) != 2 {
		t.Errorf("len(sprouts) = %d, want 2", len(sprouts))
	}
}

func TestProcessAll_Batch(t *testing.T) {
	t.Parallel()

	p := &batchPlace{}
	batch := []payload.Payload{payload.New("a", nil, "X"), payload.New("b", nil, "X")}

	if _, err := ProcessAll(context.Background(), p, batch); err != nil {
		t.Fatalf("ProcessAll() error = %v", err)
	}
	if p.batches != 1 || p.calls != 0 {
		t.Errorf("batches = %d, calls = %d, want 1, 0", p.batches, p.calls)
	}
}

func TestProcessAll_StopsOnError(t *testing.T) {
	t.Parallel()

	p := &countingPlace{fail: true}
	batch := []payload.Payload{payload.New("a", nil, "X"), payload.New("b", nil, "X")}

	if _, err := ProcessAll(context.Background(), p, batch); err == nil {
		t.Fatal("ProcessAll() error = nil, want error")
	}
	if p.calls != 1 {
		t.Errorf("Process calls = %d, want 1", p.calls)
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	if AllowsEmptyForm(&countingPlace{}) {
		t.Error("countingPlace should not allow empty forms")
	}
	if !AllowsEmptyForm(&batchPlace{}) {
		t.Error("batchPlace should allow empty forms")
	}
	if IsCoordinator(&countingPlace{}) {
		t.Error("countingPlace should not coordinate")
	}

	e, err := Entry(&countingPlace{})
	if err != nil {
		t.Fatalf("Entry() error = %v", err)
	}
	if e.PlaceName() != "CountPlace" {
		t.Errorf("Entry().PlaceName() = %q", e.PlaceName())
	}
}
