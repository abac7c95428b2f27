// Package topology owns the static installation layout: which link owns which
// block, the ring groupings, and the relay wiring of each execution node.
//
// The layout is loaded once at startup and never mutated.
package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/kinectl/internal/protocol"
)

// MaxLinks is the number of execution nodes one master supports.
const MaxLinks = 2

var (
	ErrInvalidPartition = errors.New("topology: invalid partition")
	ErrInvalidWiring    = errors.New("topology: invalid wiring")
)

// LinkRange assigns the contiguous block range [First, Last] to one link.
type LinkRange struct {
	Name  string
	First int
	Last  int
}

// RingRange groups the contiguous block range [First, Last] under a ring name.
type RingRange struct {
	Ring  protocol.Ring
	First int
	Last  int
}

// Partition is the master's static block→link table.
type Partition struct {
	TotalBlocks int
	Links       []LinkRange
	Rings       []RingRange
}

// DefaultPartition is the two-node, fifteen-block layout of the installation.
func DefaultPartition() Partition {
	return Partition{
		TotalBlocks: 15,
		Links: []LinkRange{
			{Name: "mega1", First: 1, Last: 8},
			{Name: "mega2", First: 9, Last: 15},
		},
		Rings: []RingRange{
			{Ring: protocol.RingOuter, First: 1, Last: 7},
			{Ring: protocol.RingInner, First: 8, Last: 14},
		},
	}
}

// Validate requires every block in [1, TotalBlocks] to be owned by exactly one link.
func (p Partition) Validate() error {
	if p.TotalBlocks < 1 {
		return fmt.Errorf("%w: total_blocks=%d", ErrInvalidPartition, p.TotalBlocks)
	}
	if len(p.Links) == 0 || len(p.Links) > MaxLinks {
		return fmt.Errorf("%w: links=%d (want 1..%d)", ErrInvalidPartition, len(p.Links), MaxLinks)
	}
	owner := make([]string, p.TotalBlocks+1)
	names := make(map[string]struct{}, len(p.Links))
	for i, l := range p.Links {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return fmt.Errorf("%w: links[%d] missing name", ErrInvalidPartition, i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate link %q", ErrInvalidPartition, name)
		}
		names[name] = struct{}{}
		if l.First < 1 || l.Last > p.TotalBlocks || l.First > l.Last {
			return fmt.Errorf("%w: link %q range [%d,%d]", ErrInvalidPartition, name, l.First, l.Last)
		}
		for id := l.First; id <= l.Last; id++ {
			if owner[id] != "" {
				return fmt.Errorf("%w: block %d owned by %q and %q", ErrInvalidPartition, id, owner[id], name)
			}
			owner[id] = name
		}
	}
	for id := 1; id <= p.TotalBlocks; id++ {
		if owner[id] == "" {
			return fmt.Errorf("%w: block %d has no link", ErrInvalidPartition, id)
		}
	}
	seen := make(map[protocol.Ring]struct{}, len(p.Rings))
	for _, r := range p.Rings {
		if r.Ring != protocol.RingOuter && r.Ring != protocol.RingInner {
			return fmt.Errorf("%w: unknown ring %d", ErrInvalidPartition, r.Ring)
		}
		if _, dup := seen[r.Ring]; dup {
			return fmt.Errorf("%w: duplicate ring %s", ErrInvalidPartition, r.Ring)
		}
		seen[r.Ring] = struct{}{}
		if r.First < 1 || r.Last > p.TotalBlocks || r.First > r.Last {
			return fmt.Errorf("%w: ring %s range [%d,%d]", ErrInvalidPartition, r.Ring, r.First, r.Last)
		}
	}
	return nil
}

// Contains reports whether id lies in [1, TotalBlocks].
func (p Partition) Contains(id int) bool {
	return id >= 1 && id <= p.TotalBlocks
}

// LinkFor returns the owning link of a block.
func (p Partition) LinkFor(id int) (string, bool) {
	for _, l := range p.Links {
		if id >= l.First && id <= l.Last {
			return l.Name, true
		}
	}
	return "", false
}

// LinkNames returns link names in configuration order.
func (p Partition) LinkNames() []string {
	out := make([]string, 0, len(p.Links))
	for _, l := range p.Links {
		out = append(out, l.Name)
	}
	return out
}

// BlockIDs returns 1..TotalBlocks.
func (p Partition) BlockIDs() []int {
	out := make([]int, 0, p.TotalBlocks)
	for id := 1; id <= p.TotalBlocks; id++ {
		out = append(out, id)
	}
	return out
}

// LinkBlocks returns the ascending block ids owned by link.
func (p Partition) LinkBlocks(link string) []int {
	for _, l := range p.Links {
		if l.Name != link {
			continue
		}
		out := make([]int, 0, l.Last-l.First+1)
		for id := l.First; id <= l.Last; id++ {
			out = append(out, id)
		}
		return out
	}
	return nil
}

// RingBlocks returns the ascending block ids of ring.
func (p Partition) RingBlocks(ring protocol.Ring) ([]int, bool) {
	for _, r := range p.Rings {
		if r.Ring != ring {
			continue
		}
		out := make([]int, 0, r.Last-r.First+1)
		for id := r.First; id <= r.Last; id++ {
			out = append(out, id)
		}
		return out, true
	}
	return nil, false
}

// ActuatorPins names the two relay channels of one actuator.
type ActuatorPins struct {
	Forward int
	Reverse int
}

// BlockWiring is one block of an execution node with 1–3 actuators.
type BlockWiring struct {
	ID        int
	Actuators []ActuatorPins
}

const (
	MinActuatorsPerBlock = 1
	MaxActuatorsPerBlock = 3
)

// DefaultWiring lays out blocks first..last with perBlock actuators each, assigning
// consecutive relay pins starting at basePin (forward, reverse, forward, ...).
func DefaultWiring(first, last, perBlock, basePin int) []BlockWiring {
	if perBlock < MinActuatorsPerBlock {
		perBlock = MinActuatorsPerBlock
	}
	out := make([]BlockWiring, 0, last-first+1)
	pin := basePin
	for id := first; id <= last; id++ {
		acts := make([]ActuatorPins, 0, perBlock)
		for i := 0; i < perBlock; i++ {
			acts = append(acts, ActuatorPins{Forward: pin, Reverse: pin + 1})
			pin += 2
		}
		out = append(out, BlockWiring{ID: id, Actuators: acts})
	}
	return out
}

// installationWiring is the soldered relay map of the two default nodes. Blocks 6
// and 14 sit on pins 50-53, blocks 7 and 8 are moved to 42-49, and the center block
// 15 drives three actuators on 42-47.
var installationWiring = map[string][]BlockWiring{
	"mega1": {
		{ID: 1, Actuators: []ActuatorPins{{22, 23}, {24, 25}}},
		{ID: 2, Actuators: []ActuatorPins{{26, 27}, {28, 29}}},
		{ID: 3, Actuators: []ActuatorPins{{30, 31}, {32, 33}}},
		{ID: 4, Actuators: []ActuatorPins{{34, 35}, {36, 37}}},
		{ID: 5, Actuators: []ActuatorPins{{38, 39}, {40, 41}}},
		{ID: 6, Actuators: []ActuatorPins{{50, 51}, {52, 53}}},
		{ID: 7, Actuators: []ActuatorPins{{42, 43}, {44, 45}}},
		{ID: 8, Actuators: []ActuatorPins{{46, 47}, {48, 49}}},
	},
	"mega2": {
		{ID: 9, Actuators: []ActuatorPins{{22, 23}, {24, 25}}},
		{ID: 10, Actuators: []ActuatorPins{{26, 27}, {28, 29}}},
		{ID: 11, Actuators: []ActuatorPins{{30, 31}, {32, 33}}},
		{ID: 12, Actuators: []ActuatorPins{{34, 35}, {36, 37}}},
		{ID: 13, Actuators: []ActuatorPins{{38, 39}, {40, 41}}},
		{ID: 14, Actuators: []ActuatorPins{{50, 51}, {52, 53}}},
		{ID: 15, Actuators: []ActuatorPins{{42, 43}, {44, 45}, {46, 47}}},
	},
}

// InstallationWiring returns a copy of the relay map of the named default node.
func InstallationWiring(node string) ([]BlockWiring, bool) {
	blocks, ok := installationWiring[node]
	if !ok {
		return nil, false
	}
	out := make([]BlockWiring, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, BlockWiring{ID: b.ID, Actuators: append([]ActuatorPins(nil), b.Actuators...)})
	}
	return out, true
}

// ValidateWiring requires unique positive block ids, 1–3 actuators per block and no
// relay pin shared between channels.
func ValidateWiring(blocks []BlockWiring) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: no blocks", ErrInvalidWiring)
	}
	ids := make(map[int]struct{}, len(blocks))
	pins := make(map[int]int)
	for _, b := range blocks {
		if b.ID < 1 {
			return fmt.Errorf("%w: block id %d", ErrInvalidWiring, b.ID)
		}
		if _, dup := ids[b.ID]; dup {
			return fmt.Errorf("%w: duplicate block %d", ErrInvalidWiring, b.ID)
		}
		ids[b.ID] = struct{}{}
		n := len(b.Actuators)
		if n < MinActuatorsPerBlock || n > MaxActuatorsPerBlock {
			return fmt.Errorf("%w: block %d has %d actuators", ErrInvalidWiring, b.ID, n)
		}
		for _, a := range b.Actuators {
			for _, pin := range []int{a.Forward, a.Reverse} {
				if pin < 0 {
					return fmt.Errorf("%w: block %d pin %d", ErrInvalidWiring, b.ID, pin)
				}
				if other, dup := pins[pin]; dup {
					return fmt.Errorf("%w: pin %d shared by blocks %d and %d", ErrInvalidWiring, pin, other, b.ID)
				}
				pins[pin] = b.ID
			}
		}
	}
	return nil
}

// SortedWiring returns a copy of blocks ordered by id.
func SortedWiring(blocks []BlockWiring) []BlockWiring {
	out := make([]BlockWiring, len(blocks))
	copy(out, blocks)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
