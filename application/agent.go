package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/place"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// Agent carries one payload through its itinerary.
type Agent struct {
	*core
	payload payload.Payload
}

// NewAgent creates an agent registered as name. WithOracle is required.
func NewAgent(name string, opts ...Option) (*Agent, error) {
	c, err := newCore(name, opts)
	if err != nil {
		return nil, err
	}
	a := &Agent{core: c}
	c.self = a
	return a, nil
}

// Start spawns the agent goroutine.
func (a *Agent) Start(ctx context.Context) error {
	return a.start(ctx, a.control)
}

// Payload returns the payload being carried, or nil.
func (a *Agent) Payload() payload.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.inUse.Load() {
		return nil
	}
	return a.payload
}

// Go starts routing p. The directory is consulted from at without
// processing there, and at is recorded in the payload history.
func (a *Agent) Go(p payload.Payload, at place.Place) error {
	return a.assign(p, at, false, 0, nil)
}

// Arrive continues a relocated run: p is processed at at before routing.
func (a *Agent) Arrive(p payload.Payload, at place.Place, moveErrors int, queue []*directory.Entry) error {
	return a.assign(p, at, true, moveErrors, queue)
}

func (a *Agent) assign(p payload.Payload, at place.Place, processFirst bool, moveErrors int, queue []*directory.Entry) error {
	if p == nil {
		return agent.ErrNoPayload
	}
	if at == nil {
		return place.ErrNilPlace
	}
	entry, err := place.Entry(at)
	if err != nil {
		return fmt.Errorf("arrival place: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.claim(p.ShortName(), 1, at, processFirst, moveErrors, queue); err != nil {
		return err
	}
	a.payload = p
	if !processFirst {
		recordHistory(entry, p)
	}
	a.wake()
	return nil
}

func (a *Agent) control(ctx context.Context) {
	p := a.payload
	defer func() {
		a.mu.Lock()
		a.payload = nil
		a.mu.Unlock()
	}()

	cur := a.arrival
	loop := 0
	controlError := false

	for cur != nil && !a.killed.Load() {
		loop++

		if (loop > 1 || a.processFirst) && !controlError {
			at := cur
			sprouts := a.invoke(ctx, at, []payload.Payload{p}, func(ictx context.Context) ([]payload.Payload, error) {
				return at.Process(ictx, p)
			})
			a.sprout(sprouts, at)
		}

		controlError = false
		next := a.nextKey(ctx, p)
		if next == nil {
			a.complete(ctx, []payload.Payload{p})
			return
		}

		recordHistory(next, p)

		if local, ok := a.localPlace(next); ok {
			logging.Debug().
				Add(logging.AgentID(a.AgentID())).
				Add(logging.Place(next.FullKey())).
				Msg("choosing local place")
			cur = local
			continue
		}

		err := a.move(ctx, []payload.Payload{p}, next)
		if err == nil {
			logging.Debug().
				Add(logging.AgentID(a.AgentID())).
				Add(logging.Place(next.FullKey())).
				Msg("payload relocated")
			return
		}

		controlError = true
		if a.moveFailed(p, next, err, []payload.Payload{p}) {
			a.complete(ctx, []payload.Payload{p})
			return
		}
		degrade(p)
	}
}

// sprout hands new payloads to the pool, starting at the station that made
// them.
func (a *Agent) sprout(sprouts []payload.Payload, at place.Place) {
	if len(sprouts) == 0 {
		return
	}
	if a.cfg.Pool == nil {
		logging.Warn().
			Add(logging.AgentID(a.AgentID())).
			Add(logging.Place(at.Key())).
			Add(logging.Count(len(sprouts))).
			Msg("no pool for sprouted payloads, dropping them")
		return
	}
	a.cfg.Pool.Sprout(sprouts, at)
}

var _ Carrier = (*Agent)(nil)
