// Package executor runs the execution-node side of the installation: the relay-pair
// state machine of every actuator, the blocks grouping them, and the dispatcher that
// serves canonical commands from the master link.
package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/kinectl/internal/executor/relay"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/danmuck/kinectl/internal/topology"
)

// State is the physical drive state of one actuator.
type State uint8

const (
	StateStopped State = iota
	StateForward
	StateReverse
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateForward:
		return "FORWARD"
	case StateReverse:
		return "REVERSE"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// StateFor maps a requested block action onto the actuator drive state.
func StateFor(a protocol.Action) State {
	switch a {
	case protocol.ActionUp:
		return StateForward
	case protocol.ActionDown:
		return StateReverse
	default:
		return StateStopped
	}
}

// Actuator is one relay pair. Forward and Reverse are never on together.
type Actuator struct {
	Pins  topology.ActuatorPins
	State State
	Since time.Time
}

// Drive moves a toward target. Any change of direction first de-energizes both
// channels and spends the dead-time before the new channel is energized. On a
// driver error the actuator is left Stopped.
func (a *Actuator) Drive(d relay.Driver, c timing.Clock, deadTime timing.Budget, target State) error {
	if target == a.State {
		return nil
	}
	if err := a.Stop(d, c.Now()); err != nil {
		return err
	}
	if target == StateStopped {
		return nil
	}

	deadTime.Spend(c)

	pin := a.Pins.Forward
	if target == StateReverse {
		pin = a.Pins.Reverse
	}
	if err := d.Set(pin, true); err != nil {
		_ = d.Set(pin, false)
		return fmt.Errorf("executor: energize pin %d: %w", pin, err)
	}
	a.State = target
	a.Since = c.Now()
	return nil
}

// Stop de-energizes both channels immediately. Both writes are attempted even if
// the first fails.
func (a *Actuator) Stop(d relay.Driver, now time.Time) error {
	errFwd := d.Set(a.Pins.Forward, false)
	errRev := d.Set(a.Pins.Reverse, false)
	if a.State != StateStopped {
		a.State = StateStopped
		a.Since = now
	}
	if err := errors.Join(errFwd, errRev); err != nil {
		return fmt.Errorf("executor: stop pins %d/%d: %w", a.Pins.Forward, a.Pins.Reverse, err)
	}
	return nil
}

// Runaway reports whether a has been driving for longer than limit.
func (a *Actuator) Runaway(now time.Time, limit time.Duration) bool {
	return a.State != StateStopped && now.Sub(a.Since) > limit
}
