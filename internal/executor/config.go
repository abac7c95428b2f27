package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/kinectl/internal/executor/relay"
	"github.com/danmuck/kinectl/internal/link"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/danmuck/kinectl/internal/topology"
)

var (
	ErrInvalidConfig = errors.New("executor: invalid config")
	ErrUnknownBlock  = errors.New("executor: unknown block")
)

// Firmware defaults for one execution node.
const (
	DefaultDeadTime           = 50 * time.Millisecond
	DefaultActuatorTimeout    = 15 * time.Second
	DefaultInterActuatorDelay = 100 * time.Millisecond
	DefaultStaggerDelay       = 300 * time.Millisecond
	DefaultControlCycle       = 10 * time.Millisecond
	DefaultRelayBasePin       = 22
	DefaultActuatorsPerBlock  = 2
)

// RelayConfig selects the relay driver.
type RelayConfig struct {
	Driver    relay.Kind
	Chip      string
	ActiveLow bool
}

// Config configures one execution node.
type Config struct {
	ID                 string
	DeadTime           time.Duration
	ActuatorTimeout    time.Duration
	InterActuatorDelay time.Duration
	StaggerDelay       time.Duration
	ControlCycle       time.Duration
	Blocks             []topology.BlockWiring
	Relay              RelayConfig
	Link               link.Config
	MetricsAddr        string
}

// DefaultConfig returns the node owning blocks 1–8 of the default installation,
// listening for the master on TCP.
func DefaultConfig() Config {
	lc := link.DefaultConfig()
	lc.Name = "mega1"
	lc.Transport = link.TransportTCP
	lc.Address = "0.0.0.0:7101"
	blocks, _ := topology.InstallationWiring("mega1")
	return Config{
		ID:                 "mega1",
		DeadTime:           DefaultDeadTime,
		ActuatorTimeout:    DefaultActuatorTimeout,
		InterActuatorDelay: DefaultInterActuatorDelay,
		StaggerDelay:       DefaultStaggerDelay,
		ControlCycle:       DefaultControlCycle,
		Blocks:             blocks,
		Relay:              RelayConfig{Driver: relay.KindMemory, Chip: relay.DefaultChip, ActiveLow: true},
		Link:               lc,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidConfig)
	}
	if c.DeadTime < 0 || c.InterActuatorDelay < 0 || c.StaggerDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	}
	if c.ActuatorTimeout <= 0 {
		return fmt.Errorf("%w: actuator timeout must be positive", ErrInvalidConfig)
	}
	if c.ControlCycle <= 0 {
		return fmt.Errorf("%w: control cycle must be positive", ErrInvalidConfig)
	}
	if err := topology.ValidateWiring(c.Blocks); err != nil {
		return err
	}
	return nil
}

func (c Config) budgets() Budgets {
	return Budgets{
		DeadTime:      budget("dead_time", c.DeadTime),
		InterActuator: budget("inter_actuator", c.InterActuatorDelay),
		Stagger:       budget("stagger", c.StaggerDelay),
	}
}

func budget(name string, d time.Duration) timing.Budget {
	return timing.Budget{Name: name, Duration: d}
}

// Pins returns every relay pin in the wiring table.
func (c Config) Pins() []int {
	out := make([]int, 0)
	for _, b := range c.Blocks {
		for _, a := range b.Actuators {
			out = append(out, a.Forward, a.Reverse)
		}
	}
	return out
}
