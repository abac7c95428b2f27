package executor

import (
	"errors"
	"time"

	"github.com/danmuck/kinectl/internal/executor/relay"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/danmuck/kinectl/internal/topology"
)

// Budgets are the bounded waits spent on the node control loop.
type Budgets struct {
	DeadTime      timing.Budget
	InterActuator timing.Budget
	Stagger       timing.Budget
}

// Block groups the actuators of one panel.
type Block struct {
	ID        int
	Action    protocol.Action
	Actuators []*Actuator
}

func newBlock(w topology.BlockWiring) *Block {
	b := &Block{ID: w.ID, Action: protocol.ActionStop, Actuators: make([]*Actuator, 0, len(w.Actuators))}
	for _, pins := range w.Actuators {
		b.Actuators = append(b.Actuators, &Actuator{Pins: pins})
	}
	return b
}

// Apply sequences every actuator of b through action. Moves wait the inter-actuator
// budget between actuators that change state; stops hit every actuator at once. A
// driver failure stops the whole block and returns the error.
func (b *Block) Apply(d relay.Driver, c timing.Clock, budgets Budgets, action protocol.Action) error {
	if action == protocol.ActionStop {
		return b.Stop(d, c.Now())
	}
	target := StateFor(action)
	driven := false
	for _, act := range b.Actuators {
		if act.State == target {
			continue
		}
		if driven {
			budgets.InterActuator.Spend(c)
		}
		if err := act.Drive(d, c, budgets.DeadTime, target); err != nil {
			return errors.Join(err, b.Stop(d, c.Now()))
		}
		driven = true
	}
	b.Action = action
	return nil
}

// Stop de-energizes every actuator of b.
func (b *Block) Stop(d relay.Driver, now time.Time) error {
	var errs []error
	for _, act := range b.Actuators {
		if err := act.Stop(d, now); err != nil {
			errs = append(errs, err)
		}
	}
	b.Action = protocol.ActionStop
	return errors.Join(errs...)
}

// Moving reports whether any actuator of b is energized.
func (b *Block) Moving() bool {
	for _, act := range b.Actuators {
		if act.State != StateStopped {
			return true
		}
	}
	return false
}

// Runaway reports whether any actuator of b exceeded limit.
func (b *Block) Runaway(now time.Time, limit time.Duration) bool {
	for _, act := range b.Actuators {
		if act.Runaway(now, limit) {
			return true
		}
	}
	return false
}
