package executor

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/kinectl/internal/executor/relay"
	"github.com/danmuck/kinectl/internal/link"
	"github.com/danmuck/kinectl/internal/observability"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/rs/zerolog/log"
)

// Conn is the node end of the master link.
type Conn interface {
	Lines() <-chan string
	Send(line string) error
}

// Service runs one execution node as a standalone process.
type Service struct {
	cfg    Config
	node   *Node
	driver relay.Driver
	clock  timing.Clock
}

// NewService builds the relay driver named by cfg and the node on the wall clock.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, err := relay.New(cfg.Relay.Driver, cfg.Relay.Chip, cfg.Relay.ActiveLow, cfg.Pins())
	if err != nil {
		return nil, err
	}
	return NewServiceWithDriver(cfg, driver, timing.Real{})
}

// NewServiceWithDriver builds a service over an explicit driver and clock.
func NewServiceWithDriver(cfg Config, driver relay.Driver, clock timing.Clock) (*Service, error) {
	node, err := NewNode(cfg, driver, clock)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, node: node, driver: driver, clock: clock}, nil
}

func (s *Service) Node() *Node {
	return s.node
}

// Run serves the configured link until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := link.Listen(ctx, s.cfg.Link)
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.cfg.MetricsAddr) != "" {
		engine := observability.NewEngine(s.cfg.ID)
		go func() {
			if err := observability.Serve(ctx, s.cfg.MetricsAddr, engine); err != nil {
				log.Error().Str("node", s.cfg.ID).Err(err).Msg("executor.Service.Run metrics server stopped")
			}
		}()
	}
	log.Info().
		Str("node", s.cfg.ID).
		Str("transport", string(s.cfg.Link.Transport)).
		Str("relay", string(s.cfg.Relay.Driver)).
		Int("blocks", len(s.cfg.Blocks)).
		Msg("executor.Service.Run ready")
	err = s.Serve(ctx, stream)
	if c, ok := s.driver.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			log.Error().Str("node", s.cfg.ID).Err(cerr).Msg("executor.Service.Run relay release failed")
		}
	}
	return err
}

// Serve is the node control loop: link lines are dispatched in arrival order and
// the runaway check runs every control cycle. Every relay is de-energized on return.
func (s *Service) Serve(ctx context.Context, conn Conn) error {
	ticker := time.NewTicker(s.cfg.ControlCycle)
	defer ticker.Stop()
	defer func() {
		if err := s.node.StopAll(); err != nil {
			log.Error().Str("node", s.cfg.ID).Err(err).Msg("executor.Service.Serve final stop failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("node", s.cfg.ID).Msg("executor.Service.Serve shutdown")
			return nil
		case line := <-conn.Lines():
			if reply, ok := s.node.HandleLine(line); ok {
				s.send(conn, reply)
			}
			for _, report := range s.node.DrainReports() {
				s.send(conn, report)
			}
		case <-ticker.C:
			for _, report := range s.node.CheckRunaway(s.clock.Now()) {
				s.send(conn, report)
			}
		}
	}
}

func (s *Service) send(conn Conn, line string) {
	if err := conn.Send(line); err != nil {
		log.Debug().Str("node", s.cfg.ID).Str("line", line).Err(err).Msg("executor.Service.send dropped")
	}
}
