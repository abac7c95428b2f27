package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Stream is one newline-framed link endpoint.
//
// Inbound lines are queued on Lines() in arrival order for the owning control loop to
// drain; Send writes one line and never waits for a reply. A Stream outlives the
// connections attached to it, so callers keep one Stream per link for the process
// lifetime.
type Stream struct {
	cfg   Config
	lines chan string
	done  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	conn io.ReadWriteCloser
}

// NewStream returns an unattached stream.
func NewStream(cfg Config) *Stream {
	cfg = cfg.WithDefaults()
	return &Stream{
		cfg:   cfg,
		lines: make(chan string, cfg.QueueDepth),
		done:  make(chan struct{}),
	}
}

func (s *Stream) Name() string {
	return s.cfg.Name
}

// Lines delivers inbound lines, trimmed, without the terminator.
func (s *Stream) Lines() <-chan string {
	return s.lines
}

func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes one line. A failed write drops the current connection.
func (s *Stream) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, s.cfg.Name)
	}
	if d, ok := s.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = d.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := io.WriteString(s.conn, line+"\n"); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("link %s: write: %w", s.cfg.Name, err)
	}
	return nil
}

// Attach serves rwc until it fails or the stream closes, replacing any previous
// connection. It returns the read error that ended the connection.
func (s *Stream) Attach(rwc io.ReadWriteCloser) error {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = rwc
	s.mu.Unlock()

	err := readLines(rwc, protocol.MaxLineLen, func(line string) bool {
		select {
		case s.lines <- line:
			return true
		case <-s.done:
			return false
		}
	})

	s.mu.Lock()
	if s.conn == rwc {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	return err
}

// Close detaches the current connection and stops every reader.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// readLines splits r on '\n'. Lines longer than max are discarded whole. emit returns
// false to stop reading.
func readLines(r io.Reader, max int, emit func(string) bool) error {
	br := bufio.NewReaderSize(r, max+2)
	discarding := false
	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			if !discarding {
				line := strings.TrimSpace(string(chunk))
				if line != "" && !emit(line) {
					return nil
				}
			}
			discarding = false
		case errors.Is(err, bufio.ErrBufferFull):
			discarding = true
		default:
			return err
		}
	}
}

// Dial keeps the master side of a link connected, reconnecting with backoff until
// ctx ends.
func Dial(ctx context.Context, cfg Config) (*Stream, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := NewStream(cfg)
	go s.closeOnDone(ctx)
	go s.dialLoop(ctx)
	return s, nil
}

// Listen opens the node side of a link. Serial links behave like Dial; TCP links
// accept one master at a time, the newest connection replacing the previous one.
func Listen(ctx context.Context, cfg Config) (*Stream, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Transport == TransportSerial {
		return Dial(ctx, cfg)
	}
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("link %s: listen: %w", cfg.Name, err)
	}
	s := NewStream(cfg)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		_ = s.Close()
	}()
	go s.acceptLoop(ctx, ln)
	return s, nil
}

func (s *Stream) closeOnDone(ctx context.Context) {
	select {
	case <-ctx.Done():
		_ = s.Close()
	case <-s.done:
	}
}

func (s *Stream) dialLoop(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		rwc, err := open(ctx, s.cfg)
		if err != nil {
			attempt++
			log.Warn().
				Str("link", s.cfg.Name).
				Int("attempt", attempt).
				Err(err).
				Msg("link.Stream.dialLoop connect failed")
			if !s.wait(ctx, s.cfg.Backoff.Delay(attempt, jitter)) {
				return
			}
			continue
		}
		attempt = 0
		log.Info().Str("link", s.cfg.Name).Str("transport", string(s.cfg.Transport)).Msg("link.Stream.dialLoop connected")
		err = s.Attach(rwc)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("link", s.cfg.Name).AnErr("err", err).Msg("link.Stream.dialLoop connection lost")
		if !s.wait(ctx, s.cfg.Backoff.InitialDelay) {
			return
		}
	}
}

func (s *Stream) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Str("link", s.cfg.Name).Err(err).Msg("link.Stream.acceptLoop accept failed")
			continue
		}
		remote := conn.RemoteAddr().String()
		log.Info().Str("link", s.cfg.Name).Str("remote", remote).Msg("link.Stream.acceptLoop master attached")
		go func() {
			err := s.Attach(conn)
			log.Info().Str("link", s.cfg.Name).Str("remote", remote).AnErr("err", err).Msg("link.Stream.acceptLoop master detached")
		}()
	}
}

func (s *Stream) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	case <-timer.C:
		return true
	}
}

func open(ctx context.Context, cfg Config) (io.ReadWriteCloser, error) {
	switch cfg.Transport {
	case TransportSerial:
		return OpenSerial(cfg.Device, cfg.Baud)
	case TransportTCP:
		d := net.Dialer{Timeout: cfg.DialTimeout}
		return d.DialContext(ctx, "tcp", cfg.Address)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransport, cfg.Transport)
	}
}
