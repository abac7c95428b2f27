package protocol

import (
	"fmt"
	"strings"
	"time"
)

// MaxLineLen bounds one command line, matching the firmware receive buffer.
const MaxLineLen = 256

// MaxDurationMillis is the longest move duration a command can carry.
const MaxDurationMillis = int64(1<<63-1) / int64(time.Millisecond)

// Action is the requested motion of a block.
type Action uint8

const (
	ActionStop Action = iota + 1
	ActionUp
	ActionDown
)

func (a Action) String() string {
	switch a {
	case ActionUp:
		return "UP"
	case ActionDown:
		return "DOWN"
	case ActionStop:
		return "STOP"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

func (a Action) Valid() bool {
	return a == ActionUp || a == ActionDown || a == ActionStop
}

func ParseAction(raw string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "UP":
		return ActionUp, nil
	case "DOWN":
		return ActionDown, nil
	case "STOP":
		return ActionStop, nil
	default:
		return 0, fmt.Errorf("%w: action %q", ErrMalformed, raw)
	}
}

// Ring names one of the concentric block groups.
type Ring uint8

const (
	RingOuter Ring = iota + 1
	RingInner
)

func (r Ring) String() string {
	switch r {
	case RingOuter:
		return "OUTER"
	case RingInner:
		return "INNER"
	default:
		return fmt.Sprintf("Ring(%d)", uint8(r))
	}
}

func ParseRing(raw string) (Ring, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OUTER":
		return RingOuter, nil
	case "INNER":
		return RingInner, nil
	default:
		return 0, fmt.Errorf("%w: ring %q", ErrMalformed, raw)
	}
}

// Kind tags the Message variant.
type Kind uint8

const (
	KindBlock Kind = iota + 1
	KindAll
	KindRing
	KindPing
	KindPong
	KindStatus
	KindEStop
	KindAck
	KindErr
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "BLOCK"
	case KindAll:
		return "ALL"
	case KindRing:
		return "RING"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindStatus:
		return "STATUS"
	case KindEStop:
		return "ESTOP"
	case KindAck:
		return "ACK"
	case KindErr:
		return "ERR"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ErrorCode is the reason carried by an ERR reply.
type ErrorCode string

const (
	CodeInvalidBlock     ErrorCode = "INVALID_BLOCK"
	CodeUnknownBlock     ErrorCode = "UNKNOWN_BLOCK"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	CodeFault            ErrorCode = "FAULT"
)

// BlockScoped reports whether code is carried as ERR:BLOCK:<id>:<code>.
func (c ErrorCode) BlockScoped() bool {
	return c == CodeTimeout || c == CodeFault
}

// Message is one decoded line. Which fields are meaningful depends on Kind:
//
//	KindBlock: Block, Action, Duration (zero when not supplied)
//	KindAll:   Action
//	KindRing:  Ring, Action
//	KindPong:  Detail (optional liveness summary)
//	KindAck:   Detail (canonical form of the acknowledged command)
//	KindErr:   Code, Block (block id or count, depending on Code)
type Message struct {
	Kind     Kind
	Block    int
	Action   Action
	Ring     Ring
	Duration time.Duration
	Code     ErrorCode
	Detail   string
}

func Block(id int, action Action) Message {
	return Message{Kind: KindBlock, Block: id, Action: action}
}

func All(action Action) Message {
	return Message{Kind: KindAll, Action: action}
}

func Ping() Message {
	return Message{Kind: KindPing}
}

func Pong() Message {
	return Message{Kind: KindPong}
}

// Validate checks the variant-specific fields.
func (m Message) Validate() error {
	switch m.Kind {
	case KindBlock:
		if !m.Action.Valid() {
			return fmt.Errorf("%w: block action", ErrMalformed)
		}
		if m.Duration < 0 {
			return fmt.Errorf("%w: negative duration", ErrMalformed)
		}
	case KindAll:
		if !m.Action.Valid() {
			return fmt.Errorf("%w: all action", ErrMalformed)
		}
	case KindRing:
		if !m.Action.Valid() {
			return fmt.Errorf("%w: ring action", ErrMalformed)
		}
		if m.Ring != RingOuter && m.Ring != RingInner {
			return fmt.Errorf("%w: ring", ErrMalformed)
		}
	case KindErr:
		if strings.TrimSpace(string(m.Code)) == "" {
			return fmt.Errorf("%w: missing error code", ErrMalformed)
		}
	case KindPing, KindPong, KindStatus, KindEStop, KindAck:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidKind, m.Kind)
	}
	return nil
}
