package executor

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/danmuck/kinectl/internal/executor/relay"
	"github.com/danmuck/kinectl/internal/observability"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/rs/zerolog/log"
)

// Node owns the blocks of one execution node. It is not safe for concurrent use;
// the node control loop is its only caller.
type Node struct {
	cfg     Config
	driver  relay.Driver
	clock   timing.Clock
	budgets Budgets
	blocks  map[int]*Block
	order   []int
	reports []string
}

// NewNode builds the blocks from the wiring table and de-energizes every relay.
func NewNode(cfg Config, driver relay.Driver, clock timing.Clock) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, fmt.Errorf("%w: relay driver required", ErrInvalidConfig)
	}
	if clock == nil {
		clock = timing.Real{}
	}
	n := &Node{
		cfg:     cfg,
		driver:  driver,
		clock:   clock,
		budgets: cfg.budgets(),
		blocks:  make(map[int]*Block, len(cfg.Blocks)),
		order:   make([]int, 0, len(cfg.Blocks)),
	}
	for _, w := range cfg.Blocks {
		n.blocks[w.ID] = newBlock(w)
		n.order = append(n.order, w.ID)
	}
	sort.Ints(n.order)
	if err := n.StopAll(); err != nil {
		return nil, fmt.Errorf("executor: initial stop: %w", err)
	}
	return n, nil
}

func (n *Node) ID() string {
	return n.cfg.ID
}

// HandleLine parses and dispatches one link line. Lines that do not parse, and
// verbs a node does not serve, produce no reply.
func (n *Node) HandleLine(line string) (string, bool) {
	msg, err := protocol.Parse(line)
	if err != nil {
		log.Debug().Str("node", n.cfg.ID).Str("line", line).Err(err).Msg("executor.Node.HandleLine dropped")
		return "", false
	}
	return n.Handle(msg)
}

// Handle dispatches one command and returns its single reply.
func (n *Node) Handle(msg protocol.Message) (string, bool) {
	switch msg.Kind {
	case protocol.KindPing:
		observability.RecordNodeCommand(n.cfg.ID, msg.Kind.String())
		return protocol.Pong().Encode(), true
	case protocol.KindBlock:
		observability.RecordNodeCommand(n.cfg.ID, msg.Kind.String())
		return n.handleBlock(msg), true
	case protocol.KindAll:
		observability.RecordNodeCommand(n.cfg.ID, msg.Kind.String())
		n.applyAll(msg.Action)
		return protocol.AckLine(protocol.All(msg.Action)), true
	default:
		log.Debug().Str("node", n.cfg.ID).Str("kind", msg.Kind.String()).Msg("executor.Node.Handle ignored")
		return "", false
	}
}

func (n *Node) handleBlock(msg protocol.Message) string {
	b, ok := n.blocks[msg.Block]
	if !ok {
		log.Warn().Str("node", n.cfg.ID).Int("block", msg.Block).Msg("executor.Node.handleBlock unknown block")
		return protocol.ErrLine(protocol.CodeUnknownBlock, msg.Block)
	}
	if err := b.Apply(n.driver, n.clock, n.budgets, msg.Action); err != nil {
		log.Error().Str("node", n.cfg.ID).Int("block", b.ID).Err(err).Msg("executor.Node.handleBlock relay fault")
		return protocol.BlockErrLine(b.ID, protocol.CodeFault)
	}
	log.Debug().Str("node", n.cfg.ID).Int("block", b.ID).Str("action", msg.Action.String()).Msg("executor.Node.handleBlock applied")
	return protocol.AckLine(msg)
}

// applyAll drives every block in ascending order. Moves are staggered between blocks
// that change; stops are immediate. Faults are queued as reports.
func (n *Node) applyAll(action protocol.Action) {
	if action == protocol.ActionStop {
		for _, id := range n.order {
			if err := n.blocks[id].Stop(n.driver, n.clock.Now()); err != nil {
				n.fault(id, err)
			}
		}
		return
	}
	moved := false
	for _, id := range n.order {
		b := n.blocks[id]
		if b.Action == action && b.Moving() {
			continue
		}
		if moved {
			n.budgets.Stagger.Spend(n.clock)
		}
		if err := b.Apply(n.driver, n.clock, n.budgets, action); err != nil {
			n.fault(id, err)
		}
		moved = true
	}
}

func (n *Node) fault(id int, err error) {
	log.Error().Str("node", n.cfg.ID).Int("block", id).Err(err).Msg("executor.Node relay fault")
	n.reports = append(n.reports, protocol.BlockErrLine(id, protocol.CodeFault))
}

// CheckRunaway stops every block with an actuator driven past the actuator timeout
// and returns one TIMEOUT report per stopped block.
func (n *Node) CheckRunaway(now time.Time) []string {
	var out []string
	for _, id := range n.order {
		b := n.blocks[id]
		if !b.Runaway(now, n.cfg.ActuatorTimeout) {
			continue
		}
		if err := b.Stop(n.driver, now); err != nil {
			log.Error().Str("node", n.cfg.ID).Int("block", id).Err(err).Msg("executor.Node.CheckRunaway stop failed")
		}
		observability.RecordRunawayStop(n.cfg.ID)
		log.Warn().Str("node", n.cfg.ID).Int("block", id).Dur("limit", n.cfg.ActuatorTimeout).Msg("executor.Node.CheckRunaway forced stop")
		out = append(out, protocol.TimeoutLine(id))
	}
	return out
}

// DrainReports returns and clears the queued fault reports.
func (n *Node) DrainReports() []string {
	out := n.reports
	n.reports = nil
	return out
}

// StopAll de-energizes every block immediately.
func (n *Node) StopAll() error {
	var errs []error
	now := n.clock.Now()
	for _, id := range n.order {
		if err := n.blocks[id].Stop(n.driver, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Block returns the block with id.
func (n *Node) Block(id int) (*Block, error) {
	b, ok := n.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, id)
	}
	return b, nil
}

// Snapshot lists the applied action of every block, ascending.
func (n *Node) Snapshot() []protocol.BlockStatus {
	out := make([]protocol.BlockStatus, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, protocol.BlockStatus{ID: id, Action: n.blocks[id].Action})
	}
	return out
}
