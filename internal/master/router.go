package master

import (
	"fmt"
	"sort"
	"time"

	"github.com/danmuck/kinectl/internal/observability"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/danmuck/kinectl/internal/topology"
	"github.com/rs/zerolog/log"
)

// Sender forwards one canonical line on a named link without waiting for a reply.
type Sender interface {
	Send(link, line string) error
}

// Block is the master's logical view of one panel.
type Block struct {
	ID          int
	Link        string
	Motion      protocol.Action
	Deadline    time.Time
	HasDeadline bool
}

func (b *Block) active() bool {
	return b.Motion != protocol.ActionStop
}

// Decision is the admission result of one move request.
type Decision struct {
	Accepted  bool
	Reason    protocol.ErrorCode
	Active    int
	Forwarded bool
}

// GroupResult is the outcome of a RING or ALL move.
type GroupResult struct {
	Accepted []int
	Rejected []int
	Active   int
}

// Router holds the logical block state, enforces the admission cap and forwards
// accepted moves to the owning link. It is owned by the master control loop.
type Router struct {
	blocks      map[int]*Block
	order       []int
	active      int
	cap         int
	defaultMove time.Duration
	stagger     timing.Budget
	clock       timing.Clock
	links       Sender
}

// NewRouter builds one Stopped block per partition id.
func NewRouter(part topology.Partition, admissionCap int, defaultMove, stagger time.Duration, clock timing.Clock, links Sender) *Router {
	r := &Router{
		blocks:      make(map[int]*Block, part.TotalBlocks),
		cap:         admissionCap,
		defaultMove: defaultMove,
		stagger:     timing.Budget{Name: "stagger", Duration: stagger},
		clock:       clock,
		links:       links,
	}
	for _, id := range part.BlockIDs() {
		name, _ := part.LinkFor(id)
		r.blocks[id] = &Block{ID: id, Link: name, Motion: protocol.ActionStop}
		r.order = append(r.order, id)
	}
	sort.Ints(r.order)
	observability.SetActiveBlocks(0)
	return r
}

// RequestMove admits and forwards one block move. d is the auto-stop duration for
// UP/DOWN; zero selects the default move duration.
func (r *Router) RequestMove(id int, action protocol.Action, d time.Duration) Decision {
	dec, send := r.admit(id, action, d)
	if send {
		r.forward(r.blocks[id], action)
	}
	return dec
}

// admit applies the admission rules to the logical state and reports whether the
// command must be forwarded.
func (r *Router) admit(id int, action protocol.Action, d time.Duration) (Decision, bool) {
	b, ok := r.blocks[id]
	if !ok {
		observability.RecordAdmissionRejection(string(protocol.CodeInvalidBlock))
		return Decision{Reason: protocol.CodeInvalidBlock, Active: r.active}, false
	}
	if action == protocol.ActionStop {
		r.stop(b)
		return Decision{Accepted: true, Active: r.active, Forwarded: true}, true
	}
	switch {
	case b.Motion == action:
		return Decision{Accepted: true, Active: r.active}, false
	case b.active():
		// Reversal: the block keeps its admission slot.
		b.Motion = action
		r.arm(b, d)
		return Decision{Accepted: true, Active: r.active, Forwarded: true}, true
	case r.active >= r.cap:
		observability.RecordAdmissionRejection(string(protocol.CodeCapacityExceeded))
		log.Debug().Int("block", id).Int("active", r.active).Int("cap", r.cap).Msg("master.Router.admit capacity exceeded")
		return Decision{Reason: protocol.CodeCapacityExceeded, Active: r.active}, false
	}
	b.Motion = action
	r.arm(b, d)
	r.setActive(r.active + 1)
	return Decision{Accepted: true, Active: r.active, Forwarded: true}, true
}

func (r *Router) arm(b *Block, d time.Duration) {
	if d <= 0 {
		d = r.defaultMove
	}
	if d <= 0 {
		b.HasDeadline = false
		b.Deadline = time.Time{}
		return
	}
	b.Deadline = r.clock.Now().Add(d)
	b.HasDeadline = true
}

// stop moves b to Stopped in the logical state only.
func (r *Router) stop(b *Block) bool {
	b.HasDeadline = false
	b.Deadline = time.Time{}
	if !b.active() {
		return false
	}
	b.Motion = protocol.ActionStop
	r.setActive(r.active - 1)
	return true
}

func (r *Router) setActive(n int) {
	r.active = n
	observability.SetActiveBlocks(n)
}

func (r *Router) forward(b *Block, action protocol.Action) {
	line := protocol.Block(b.ID, action).Encode()
	if err := r.links.Send(b.Link, line); err != nil {
		log.Warn().Str("link", b.Link).Str("line", line).Err(err).Msg("master.Router.forward send failed")
	}
}

// Tick stops every block whose deadline has passed, exactly as an external STOP
// would, and returns their ids.
func (r *Router) Tick(now time.Time) []int {
	var stopped []int
	for _, id := range r.order {
		b := r.blocks[id]
		if !b.HasDeadline || now.Before(b.Deadline) {
			continue
		}
		r.stop(b)
		r.forward(b, protocol.ActionStop)
		observability.RecordAutoStop()
		log.Debug().Int("block", id).Msg("master.Router.Tick deadline reached")
		stopped = append(stopped, id)
	}
	return stopped
}

// MoveGroup applies action to ids in ascending order. Moves sleep the stagger
// budget between successive forwarded sends; stops are never staggered.
func (r *Router) MoveGroup(ids []int, action protocol.Action) GroupResult {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	var res GroupResult
	sent := false
	for _, id := range sorted {
		dec, send := r.admit(id, action, 0)
		if !dec.Accepted {
			res.Rejected = append(res.Rejected, id)
			continue
		}
		res.Accepted = append(res.Accepted, id)
		if !send {
			continue
		}
		if sent && action != protocol.ActionStop {
			r.stagger.Spend(r.clock)
		}
		r.forward(r.blocks[id], action)
		sent = true
	}
	res.Active = r.active
	return res
}

// ForceStopLink moves every block owned by link to Stopped in the logical state and
// returns the ids that were active. Nothing is sent.
func (r *Router) ForceStopLink(link string) []int {
	var stopped []int
	for _, id := range r.order {
		b := r.blocks[id]
		if b.Link != link {
			continue
		}
		if r.stop(b) {
			stopped = append(stopped, id)
		}
	}
	return stopped
}

// ForceStopOn moves one block owned by link to Stopped in the logical state
// without sending. It reports ErrForeignBlock when id is not owned by link.
func (r *Router) ForceStopOn(link string, id int) (bool, error) {
	b, ok := r.blocks[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownBlock, id)
	}
	if b.Link != link {
		return false, fmt.Errorf("%w: block %d owned by %s", ErrForeignBlock, id, b.Link)
	}
	return r.stop(b), nil
}

// StopAll clears every motion and deadline and zeroes the active count. Nothing is
// sent.
func (r *Router) StopAll() {
	for _, id := range r.order {
		b := r.blocks[id]
		b.Motion = protocol.ActionStop
		b.HasDeadline = false
		b.Deadline = time.Time{}
	}
	r.setActive(0)
}

func (r *Router) Active() int {
	return r.active
}

func (r *Router) Cap() int {
	return r.cap
}

// Block returns a copy of the block with id.
func (r *Router) Block(id int) (Block, bool) {
	b, ok := r.blocks[id]
	if !ok {
		return Block{}, false
	}
	return *b, true
}

// ActiveIDs lists the non-stopped blocks, ascending.
func (r *Router) ActiveIDs() []int {
	out := make([]int, 0, r.active)
	for _, id := range r.order {
		if r.blocks[id].active() {
			out = append(out, id)
		}
	}
	return out
}

// Statuses lists every block's motion, ascending.
func (r *Router) Statuses() []protocol.BlockStatus {
	out := make([]protocol.BlockStatus, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, protocol.BlockStatus{ID: id, Action: r.blocks[id].Motion})
	}
	return out
}
