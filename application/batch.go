package application

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/place"
	"github.com/felixgeelhaar/itinerary/domain/stage"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// BatchAgent carries a list of payloads. Payloads sharing a form and a last
// visited station ride along with the primary, sprouts join the list, and
// the IO stage is deferred until every payload is ready for it.
type BatchAgent struct {
	*core

	listMu   sync.RWMutex
	payloads []payload.Payload
}

// NewBatchAgent creates a batch agent registered as name. WithOracle is
// required.
func NewBatchAgent(name string, opts ...Option) (*BatchAgent, error) {
	c, err := newCore(name, opts)
	if err != nil {
		return nil, err
	}
	b := &BatchAgent{core: c}
	c.self = b
	return b, nil
}

// Start spawns the agent goroutine.
func (b *BatchAgent) Start(ctx context.Context) error {
	return b.start(ctx, b.control)
}

// Payload returns the primary payload, or nil.
func (b *BatchAgent) Payload() payload.Payload {
	b.listMu.RLock()
	defer b.listMu.RUnlock()
	if len(b.payloads) == 0 {
		return nil
	}
	return b.payloads[0]
}

// Payloads returns a copy of the carried list, primary first.
func (b *BatchAgent) Payloads() []payload.Payload {
	b.listMu.RLock()
	defer b.listMu.RUnlock()
	return slices.Clone(b.payloads)
}

// PayloadCount returns the number of carried payloads.
func (b *BatchAgent) PayloadCount() int {
	b.listMu.RLock()
	defer b.listMu.RUnlock()
	return len(b.payloads)
}

// Go starts routing a single payload.
func (b *BatchAgent) Go(p payload.Payload, at place.Place) error {
	if p == nil {
		return agent.ErrNoPayload
	}
	return b.GoBatch([]payload.Payload{p}, at)
}

// Arrive continues a relocated run of a single payload.
func (b *BatchAgent) Arrive(p payload.Payload, at place.Place, moveErrors int, queue []*directory.Entry) error {
	if p == nil {
		return agent.ErrNoPayload
	}
	return b.ArriveBatch([]payload.Payload{p}, at, moveErrors, queue)
}

// GoBatch starts routing ps. The first payload is the primary and only its
// history records at.
func (b *BatchAgent) GoBatch(ps []payload.Payload, at place.Place) error {
	return b.assign(ps, at, false, 0, nil)
}

// ArriveBatch continues a relocated run: ps are processed at at before
// routing.
func (b *BatchAgent) ArriveBatch(ps []payload.Payload, at place.Place, moveErrors int, queue []*directory.Entry) error {
	return b.assign(ps, at, true, moveErrors, queue)
}

func (b *BatchAgent) assign(ps []payload.Payload, at place.Place, processFirst bool, moveErrors int, queue []*directory.Entry) error {
	ps = slices.DeleteFunc(slices.Clone(ps), func(p payload.Payload) bool { return p == nil })
	if len(ps) == 0 {
		return agent.ErrNoPayload
	}
	if at == nil {
		return place.ErrNilPlace
	}
	entry, err := place.Entry(at)
	if err != nil {
		return fmt.Errorf("arrival place: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.claim(ps[0].ShortName(), len(ps), at, processFirst, moveErrors, queue); err != nil {
		return err
	}
	b.listMu.Lock()
	b.payloads = ps
	b.listMu.Unlock()

	if !processFirst {
		recordHistory(entry, ps[0])
	}
	b.wake()
	return nil
}

func (b *BatchAgent) control(ctx context.Context) {
	defer b.setList(nil)

	cur := b.arrival
	if cur == nil || len(b.payloads) == 0 {
		return
	}
	next, err := place.Entry(cur)
	if err != nil {
		return
	}

	primary := b.payloads[0]
	loop := 0
	recorded := true
	controlError := false

	for !b.killed.Load() {
		loop++

		primaryForm := primary.CurrentForm()
		primaryLast, _ := primary.LastPlaceVisited()

		if (loop > 1 || b.processFirst) && !controlError {
			if serviceType(cur) == stage.IO {
				all := slices.Clone(b.payloads)
				if !recorded {
					recordAll(next, all)
					recorded = true
				}
				b.process(ctx, cur, all)
			} else {
				batch := []payload.Payload{primary}
				for _, s := range b.payloads {
					if s == primary || s.SearchCurrentForm(primaryForm) < 0 {
						continue
					}
					if !sameLastVisit(primaryLast, s) {
						continue
					}
					s.PullFormToTop(primaryForm)
					batch = append(batch, s)
				}
				if !recorded {
					recordAll(next, batch)
					recorded = true
				}
				if sprouts := b.process(ctx, cur, batch); len(sprouts) > 0 {
					b.setList(append(slices.Clone(b.payloads), sprouts...))
				}
			}
		}

		controlError = false
		next = b.nextKey(ctx, primary)
		recorded = false

		// The primary's own IO candidate waits while a sibling has other work.
		var dropOff *directory.Entry
		dropFor := -1
		if next != nil && len(b.payloads) > 1 && next.ServiceType == stage.IO && serviceType(cur) != stage.IO {
			logging.Debug().
				Add(logging.AgentID(b.AgentID())).
				Add(logging.Place(next.FullKey())).
				Msg("deferring IO phase")
			dropOff, dropFor = next, 0
			next = nil
		}

		if next == nil {
			for i, p := range slices.Clone(b.payloads) {
				if p == primary {
					continue
				}
				b.setParallelTrackingFor(p)
				e := b.nextKey(ctx, p)
				if e == nil {
					continue
				}
				if e.ServiceType == stage.IO {
					if dropFor == -1 {
						dropFor = i
						dropOff = e
					}
					continue
				}
				if i != 0 {
					b.switchPrimary(i)
				}
				primary = p
				next = e
				break
			}

			if next == nil && dropFor > -1 {
				if dropFor != 0 {
					b.switchPrimary(dropFor)
					primary = b.payloads[0]
				}
				b.setParallelTrackingFor(primary)
				next = dropOff
			}
		}

		if next == nil {
			b.complete(ctx, slices.Clone(b.payloads))
			return
		}

		if local, ok := b.localPlace(next); ok {
			cur = local
			continue
		}

		recordHistory(next, primary)
		recorded = true

		all := slices.Clone(b.payloads)
		err := b.move(ctx, all, next)
		if err == nil {
			return
		}

		controlError = true
		if b.moveFailed(primary, next, err, all) {
			b.complete(ctx, all)
			return
		}
		for _, p := range all {
			if p != primary && finished(p) {
				continue
			}
			degrade(p)
		}
	}
}

// process invokes at once over batch.
func (b *BatchAgent) process(ctx context.Context, at place.Place, batch []payload.Payload) []payload.Payload {
	return b.invoke(ctx, at, batch, func(ictx context.Context) ([]payload.Payload, error) {
		return place.ProcessAll(ictx, at, batch)
	})
}

// switchPrimary swaps payload i with the primary.
func (b *BatchAgent) switchPrimary(i int) {
	b.listMu.Lock()
	b.payloads[0], b.payloads[i] = b.payloads[i], b.payloads[0]
	name := b.payloads[0].ShortName()
	b.listMu.Unlock()
	b.setShortName(name)
}

func (b *BatchAgent) setList(ps []payload.Payload) {
	b.listMu.Lock()
	b.payloads = ps
	b.listMu.Unlock()
	if len(ps) > 0 {
		b.setCount(len(ps))
	}
}

func recordAll(e *directory.Entry, ps []payload.Payload) {
	for _, p := range ps {
		recordHistory(e, p)
	}
}

// finished reports whether p already reached a DONE form.
func finished(p payload.Payload) bool {
	return strings.HasPrefix(p.CurrentForm(), payload.FormDone)
}

// sameLastVisit reports whether s was last routed where the primary was.
func sameLastVisit(primaryLast *directory.Entry, s payload.Payload) bool {
	last, ok := s.LastPlaceVisited()
	if primaryLast == nil {
		return !ok
	}
	return ok && last.Key() == primaryLast.Key()
}

var _ BatchCarrier = (*BatchAgent)(nil)
