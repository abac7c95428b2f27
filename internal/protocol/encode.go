package protocol

import (
	"strconv"
	"strings"
)

// Encode returns the canonical colon-delimited form of m, without the line terminator.
func (m Message) Encode() string {
	switch m.Kind {
	case KindBlock:
		out := "BLOCK:" + strconv.Itoa(m.Block) + ":" + m.Action.String()
		if m.Duration > 0 {
			out += ":" + strconv.FormatInt(m.Duration.Milliseconds(), 10)
		}
		return out
	case KindAll:
		return "ALL:" + m.Action.String()
	case KindRing:
		return "RING:" + m.Ring.String() + ":" + m.Action.String()
	case KindPong:
		if m.Detail != "" {
			return "PONG:" + m.Detail
		}
		return "PONG"
	case KindAck:
		return "ACK:" + m.Detail
	case KindErr:
		if m.Code.BlockScoped() {
			return BlockErrLine(m.Block, m.Code)
		}
		return ErrLine(m.Code, m.Block)
	default:
		return m.Kind.String()
	}
}

// Wire returns the encoded line with its newline terminator.
func (m Message) Wire() []byte {
	return []byte(m.Encode() + "\n")
}

// Ack builds the acknowledgement for cmd.
func Ack(cmd Message) Message {
	return Message{Kind: KindAck, Detail: cmd.Encode()}
}

func AckLine(cmd Message) string {
	return Ack(cmd).Encode()
}

// ErrLine formats ERR:<code>:<n>.
func ErrLine(code ErrorCode, n int) string {
	return "ERR:" + string(code) + ":" + strconv.Itoa(n)
}

// BlockErrLine formats ERR:BLOCK:<id>:<code>, the node-originated report for one block.
func BlockErrLine(block int, code ErrorCode) string {
	return "ERR:BLOCK:" + strconv.Itoa(block) + ":" + string(code)
}

// TimeoutLine formats the runaway self-stop report for one block.
func TimeoutLine(block int) string {
	return BlockErrLine(block, CodeTimeout)
}

// LinkStatus is one entry of a PONG liveness summary.
type LinkStatus struct {
	Name  string
	Alive bool
}

// PongLine formats PONG:<link>=OK|DEAD,... in the given order.
func PongLine(links []LinkStatus) string {
	if len(links) == 0 {
		return "PONG"
	}
	parts := make([]string, 0, len(links))
	for _, l := range links {
		state := "DEAD"
		if l.Alive {
			state = "OK"
		}
		parts = append(parts, l.Name+"="+state)
	}
	return "PONG:" + strings.Join(parts, ",")
}

// BlockStatus is one entry of a STATE line.
type BlockStatus struct {
	ID     int
	Action Action
}

// StateLine formats STATE:<id>:<UP|DOWN|STOP>,... in the given order.
func StateLine(blocks []BlockStatus) string {
	var b strings.Builder
	b.WriteString("STATE:")
	for i, blk := range blocks {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(blk.ID))
		b.WriteByte(':')
		b.WriteString(blk.Action.String())
	}
	return b.String()
}
