package master

import (
	"time"

	"github.com/danmuck/kinectl/internal/observability"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// LinkHealth is the liveness record of one downstream link.
type LinkHealth struct {
	Name     string
	Alive    bool
	LastSeen time.Time
}

// Supervisor probes every link on a fixed interval and cascades a stop when a live
// link falls silent. It is owned by the master control loop.
type Supervisor struct {
	interval  time.Duration
	deadAfter time.Duration
	links     []*LinkHealth
	byName    map[string]*LinkHealth
	lastProbe time.Time
	probed    bool
	sender    Sender
	router    *Router
}

// NewSupervisor starts every link dead with LastSeen at start.
func NewSupervisor(names []string, interval time.Duration, multiplier int, start time.Time, sender Sender, router *Router) *Supervisor {
	s := &Supervisor{
		interval:  interval,
		deadAfter: time.Duration(multiplier) * interval,
		byName:    make(map[string]*LinkHealth, len(names)),
		sender:    sender,
		router:    router,
	}
	for _, name := range names {
		h := &LinkHealth{Name: name, LastSeen: start}
		s.links = append(s.links, h)
		s.byName[name] = h
		observability.SetLinkAlive(name, false)
	}
	return s
}

// Probe sends PING on every link once per interval, regardless of link state. It
// reports whether a probe went out.
func (s *Supervisor) Probe(now time.Time) bool {
	if s.probed && now.Sub(s.lastProbe) < s.interval {
		return false
	}
	s.lastProbe = now
	s.probed = true
	ping := protocol.Ping().Encode()
	for _, h := range s.links {
		if err := s.sender.Send(h.Name, ping); err != nil {
			log.Debug().Str("link", h.Name).Err(err).Msg("master.Supervisor.Probe send failed")
		}
	}
	return true
}

// Observe records one message received on link. PONG refreshes liveness; node
// reports that a block stopped on its own fold back into the router.
func (s *Supervisor) Observe(link string, msg protocol.Message, now time.Time) {
	h, ok := s.byName[link]
	if !ok {
		return
	}
	switch msg.Kind {
	case protocol.KindPong:
		if !h.Alive {
			log.Info().Str("link", link).Msg("master.Supervisor.Observe link alive")
			observability.SetLinkAlive(link, true)
		}
		h.Alive = true
		h.LastSeen = now
	case protocol.KindErr:
		if msg.Code.BlockScoped() {
			stopped, err := s.router.ForceStopOn(link, msg.Block)
			if err != nil {
				log.Warn().
					Str("link", link).
					Str("code", string(msg.Code)).
					Err(err).
					Msg("master.Supervisor.Observe dropped block report")
				return
			}
			log.Warn().
				Str("link", link).
				Int("block", msg.Block).
				Str("code", string(msg.Code)).
				Bool("was_active", stopped).
				Msg("master.Supervisor.Observe node stopped block")
			return
		}
		log.Warn().Str("link", link).Str("code", string(msg.Code)).Int("value", msg.Block).Msg("master.Supervisor.Observe node error")
	case protocol.KindAck:
		log.Debug().Str("link", link).Str("ack", msg.Detail).Msg("master.Supervisor.Observe ack")
	default:
		log.Debug().Str("link", link).Str("kind", msg.Kind.String()).Msg("master.Supervisor.Observe ignored")
	}
}

// Check declares dead every live link silent for longer than the dead-link window,
// sends ALL:STOP on it and forces its blocks Stopped. Each silence episode cascades
// once; the link stays dead until the next PONG. It returns the links lost.
func (s *Supervisor) Check(now time.Time) []string {
	var lost []string
	for _, h := range s.links {
		if !h.Alive || now.Sub(h.LastSeen) <= s.deadAfter {
			continue
		}
		h.Alive = false
		lost = append(lost, h.Name)
		if err := s.sender.Send(h.Name, protocol.All(protocol.ActionStop).Encode()); err != nil {
			log.Debug().Str("link", h.Name).Err(err).Msg("master.Supervisor.Check stop send failed")
		}
		stopped := s.router.ForceStopLink(h.Name)
		observability.SetLinkAlive(h.Name, false)
		observability.RecordCascadeStop(h.Name)
		log.Warn().
			Str("link", h.Name).
			Dur("silent", now.Sub(h.LastSeen)).
			Ints("stopped", stopped).
			Int("active", s.router.Active()).
			Msg("master.Supervisor.Check link lost")
	}
	return lost
}

// Statuses lists link liveness in configured order.
func (s *Supervisor) Statuses() []protocol.LinkStatus {
	out := make([]protocol.LinkStatus, 0, len(s.links))
	for _, h := range s.links {
		out = append(out, protocol.LinkStatus{Name: h.Name, Alive: h.Alive})
	}
	return out
}

// Health returns a copy of the named link record.
func (s *Supervisor) Health(name string) (LinkHealth, bool) {
	h, ok := s.byName[name]
	if !ok {
		return LinkHealth{}, false
	}
	return *h, true
}
