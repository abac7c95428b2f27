package master

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/kinectl/internal/observability"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/rs/zerolog/log"
)

type op struct {
	fn   func(*Controller)
	done chan struct{}
}

// Service runs the master control loop. The Controller is touched only from the
// goroutine inside Serve; every other caller goes through Do.
type Service struct {
	cfg     Config
	clock   timing.Clock
	ctl     *Controller
	ops     chan op
	stopped chan struct{}
	stopMu  sync.Once
	ready   atomic.Bool
}

func NewService(cfg Config, clock timing.Clock, links Sender) (*Service, error) {
	if clock == nil {
		clock = timing.Real{}
	}
	ctl, err := NewController(cfg, clock, links)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		clock:   clock,
		ctl:     ctl,
		ops:     make(chan op),
		stopped: make(chan struct{}),
	}, nil
}

// Run dials every link, starts the UDP and HTTP ingress and serves until
// SIGINT/SIGTERM.
func Run(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	links, err := DialLinks(ctx, cfg.Links)
	if err != nil {
		return err
	}
	svc, err := NewService(cfg, timing.Real{}, links)
	if err != nil {
		return err
	}

	ingressErr := make(chan error, 2)
	if cfg.UDPAddr != "" {
		udp, err := ListenUDP(cfg.UDPAddr, cfg.ReplyTimeout)
		if err != nil {
			return err
		}
		go func() { ingressErr <- udp.Serve(ctx, svc) }()
	}
	if cfg.HTTPAddr != "" {
		handler := NewHTTPHandler(cfg, svc)
		go func() { ingressErr <- observability.Serve(ctx, cfg.HTTPAddr, handler) }()
	}

	log.Info().
		Str("id", cfg.ID).
		Int("blocks", cfg.Partition.TotalBlocks).
		Strs("links", cfg.Partition.LinkNames()).
		Int("cap", cfg.AdmissionCap).
		Str("udp", cfg.UDPAddr).
		Str("http", cfg.HTTPAddr).
		Msg("master.Run ready")
	return svc.Serve(ctx, links.Inbound(ctx), ingressErr)
}

// Serve is the master control loop. Node lines are observed in arrival order,
// ingress operations run one at a time and Step runs every tick. An ingress server
// exiting while ctx is live triggers an emergency stop; ctx ending triggers one too.
func (s *Service) Serve(ctx context.Context, inbound <-chan Inbound, ingressErr <-chan error) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	defer s.stopMu.Do(func() { close(s.stopped) })
	s.ready.Store(true)
	defer s.ready.Store(false)

	for {
		select {
		case <-ctx.Done():
			s.ctl.EmergencyStop(StopReasonShutdown)
			return nil
		case in := <-inbound:
			s.ctl.Observe(in.Link, in.Line, s.clock.Now())
		case o := <-s.ops:
			o.fn(s.ctl)
			close(o.done)
		case <-ticker.C:
			s.ctl.Step(s.clock.Now())
		case err := <-ingressErr:
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("master.Service.Serve ingress lost")
			s.ctl.EmergencyStop(StopReasonIngressLost)
		}
	}
}

// Do runs fn on the control loop and waits for it to finish.
func (s *Service) Do(ctx context.Context, fn func(*Controller)) error {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case s.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	<-o.done
	return nil
}

// Submit interprets one command line on the control loop.
func (s *Service) Submit(ctx context.Context, line string) (string, bool, error) {
	var (
		reply string
		ok    bool
	)
	err := s.Do(ctx, func(c *Controller) {
		reply, ok = c.Handle(line)
	})
	return reply, ok, err
}

// Snapshot returns the current master status.
func (s *Service) Snapshot(ctx context.Context) (Status, error) {
	var st Status
	err := s.Do(ctx, func(c *Controller) {
		st = c.Status()
	})
	return st, err
}

func (s *Service) EmergencyStop(ctx context.Context, reason string) error {
	return s.Do(ctx, func(c *Controller) {
		c.EmergencyStop(reason)
	})
}

// Ready reports whether the control loop is running.
func (s *Service) Ready() bool {
	return s.ready.Load()
}
