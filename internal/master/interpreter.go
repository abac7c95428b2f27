package master

import (
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Handle interprets one ingress command and returns its single reply. Lines that do
// not parse, and node-only verbs, return ok == false with no side effect.
func (c *Controller) Handle(line string) (reply string, ok bool) {
	msg, err := protocol.Parse(line)
	if err != nil {
		log.Debug().Str("line", line).Err(err).Msg("master.Controller.Handle dropped")
		return "", false
	}
	return c.HandleMessage(msg)
}

// HandleMessage dispatches a decoded ingress command.
func (c *Controller) HandleMessage(msg protocol.Message) (string, bool) {
	switch msg.Kind {
	case protocol.KindBlock:
		return c.handleBlock(msg), true
	case protocol.KindAll:
		if msg.Action == protocol.ActionStop {
			c.EmergencyStop(StopReasonIngress)
			return protocol.AckLine(msg), true
		}
		return c.groupReply(msg, c.router.MoveGroup(c.cfg.Partition.BlockIDs(), msg.Action)), true
	case protocol.KindRing:
		ids, ok := c.cfg.Partition.RingBlocks(msg.Ring)
		if !ok {
			return protocol.ErrLine(protocol.CodeInvalidBlock, 0), true
		}
		return c.groupReply(msg, c.router.MoveGroup(ids, msg.Action)), true
	case protocol.KindPing:
		return protocol.PongLine(c.supervisor.Statuses()), true
	case protocol.KindStatus:
		return protocol.StateLine(c.router.Statuses()), true
	case protocol.KindEStop:
		c.EmergencyStop(StopReasonIngress)
		return protocol.AckLine(msg), true
	default:
		log.Debug().Str("kind", msg.Kind.String()).Msg("master.Controller.HandleMessage ignored")
		return "", false
	}
}

func (c *Controller) handleBlock(msg protocol.Message) string {
	dec := c.router.RequestMove(msg.Block, msg.Action, msg.Duration)
	switch {
	case dec.Accepted:
		return protocol.AckLine(msg)
	case dec.Reason == protocol.CodeInvalidBlock:
		return protocol.ErrLine(protocol.CodeInvalidBlock, msg.Block)
	default:
		return protocol.ErrLine(dec.Reason, dec.Active)
	}
}

// groupReply acknowledges a group move unless admission rejected any member.
// Accepted members keep moving either way.
func (c *Controller) groupReply(msg protocol.Message, res GroupResult) string {
	if len(res.Rejected) > 0 {
		log.Info().
			Str("cmd", msg.Encode()).
			Ints("accepted", res.Accepted).
			Ints("rejected", res.Rejected).
			Msg("master.Controller.groupReply partial admission")
		return protocol.ErrLine(protocol.CodeCapacityExceeded, res.Active)
	}
	return protocol.AckLine(msg)
}
