// Package master runs the coordinating node: command interpretation, block routing
// with admission control, link supervision and the global emergency stop.
package master

import (
	"time"

	"github.com/danmuck/kinectl/internal/observability"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/rs/zerolog/log"
)

// Emergency stop triggers.
const (
	StopReasonIngress     = "ingress"
	StopReasonIngressLost = "ingress_lost"
	StopReasonShutdown    = "shutdown"
)

// Controller is the master state owned by one control loop. None of its methods are
// safe for concurrent use.
type Controller struct {
	cfg        Config
	clock      timing.Clock
	links      Sender
	router     *Router
	supervisor *Supervisor
}

func NewController(cfg Config, clock timing.Clock, links Sender) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timing.Real{}
	}
	router := NewRouter(cfg.Partition, cfg.AdmissionCap, cfg.DefaultMoveDuration, cfg.StaggerDelay, clock, links)
	sup := NewSupervisor(cfg.Partition.LinkNames(), cfg.HeartbeatInterval, cfg.DeadLinkMultiplier, clock.Now(), links, router)
	return &Controller{
		cfg:        cfg,
		clock:      clock,
		links:      links,
		router:     router,
		supervisor: sup,
	}, nil
}

func (c *Controller) Router() *Router {
	return c.router
}

func (c *Controller) Supervisor() *Supervisor {
	return c.supervisor
}

// Step runs the periodic work of one control cycle: deadline expiry, heartbeat probe
// and dead-link check.
func (c *Controller) Step(now time.Time) {
	c.router.Tick(now)
	c.supervisor.Probe(now)
	c.supervisor.Check(now)
}

// Observe handles one line received from a node. Lines that do not parse are dropped.
func (c *Controller) Observe(link, line string, now time.Time) {
	msg, err := protocol.Parse(line)
	if err != nil {
		log.Debug().Str("link", link).Str("line", line).Err(err).Msg("master.Controller.Observe dropped")
		return
	}
	c.supervisor.Observe(link, msg, now)
}

// EmergencyStop forces every block Stopped, zeroes the active count and sends ALL:STOP
// on every link, bypassing admission and stagger.
func (c *Controller) EmergencyStop(reason string) {
	c.router.StopAll()
	stop := protocol.All(protocol.ActionStop).Encode()
	for _, name := range c.cfg.Partition.LinkNames() {
		if err := c.links.Send(name, stop); err != nil {
			log.Debug().Str("link", name).Err(err).Msg("master.Controller.EmergencyStop send failed")
		}
	}
	observability.RecordEmergencyStop(reason)
	log.Warn().Str("reason", reason).Msg("master.Controller.EmergencyStop all blocks stopped")
}

// Status is a point-in-time view of the master state.
type Status struct {
	Active int             `json:"active"`
	Cap    int             `json:"cap"`
	Blocks []int           `json:"blocks"`
	States map[int]string  `json:"states"`
	Links  map[string]bool `json:"links"`
}

func (c *Controller) Status() Status {
	st := Status{
		Active: c.router.Active(),
		Cap:    c.router.Cap(),
		Blocks: c.router.ActiveIDs(),
		States: make(map[int]string),
		Links:  make(map[string]bool),
	}
	for _, b := range c.router.Statuses() {
		st.States[b.ID] = b.Action.String()
	}
	for _, l := range c.supervisor.Statuses() {
		st.Links[l.Name] = l.Alive
	}
	return st
}
