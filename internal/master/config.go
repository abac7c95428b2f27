package master

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/kinectl/internal/link"
	"github.com/danmuck/kinectl/internal/topology"
)

var (
	ErrInvalidConfig = errors.New("master: invalid config")
	ErrStopped       = errors.New("master: service stopped")
	ErrUnknownBlock  = errors.New("master: unknown block")
	ErrForeignBlock  = errors.New("master: block not owned by link")
)

// Master defaults, matching the installation firmware.
const (
	DefaultAdmissionCap        = 2
	DefaultMoveDuration        = 6 * time.Second
	DefaultTickInterval        = 20 * time.Millisecond
	DefaultHeartbeatInterval   = 2 * time.Second
	DefaultDeadLinkMultiplier  = 3
	DefaultStaggerDelay        = 300 * time.Millisecond
	DefaultUDPAddr             = ":4210"
	DefaultHTTPAddr            = ":8080"
	DefaultIngressReplyTimeout = 2 * time.Second
)

// Config configures the master.
type Config struct {
	ID                  string
	Partition           topology.Partition
	Links               []link.Config
	AdmissionCap        int
	DefaultMoveDuration time.Duration
	TickInterval        time.Duration
	HeartbeatInterval   time.Duration
	DeadLinkMultiplier  int
	StaggerDelay        time.Duration
	UDPAddr             string
	HTTPAddr            string
	CorsOrigins         []string
	ReplyTimeout        time.Duration
}

// DefaultConfig returns the two-link installation with both nodes reached over TCP
// on localhost.
func DefaultConfig() Config {
	part := topology.DefaultPartition()
	links := make([]link.Config, 0, len(part.Links))
	for i, lr := range part.Links {
		lc := link.DefaultConfig()
		lc.Name = lr.Name
		lc.Transport = link.TransportTCP
		lc.Address = fmt.Sprintf("127.0.0.1:%d", 7101+i)
		links = append(links, lc)
	}
	return Config{
		ID:                  "master",
		Partition:           part,
		Links:               links,
		AdmissionCap:        DefaultAdmissionCap,
		DefaultMoveDuration: DefaultMoveDuration,
		TickInterval:        DefaultTickInterval,
		HeartbeatInterval:   DefaultHeartbeatInterval,
		DeadLinkMultiplier:  DefaultDeadLinkMultiplier,
		StaggerDelay:        DefaultStaggerDelay,
		UDPAddr:             DefaultUDPAddr,
		HTTPAddr:            DefaultHTTPAddr,
		CorsOrigins:         []string{"http://localhost:3000"},
		ReplyTimeout:        DefaultIngressReplyTimeout,
	}
}

// Validate checks the partition and that every partition link has exactly one
// transport entry.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidConfig)
	}
	if err := c.Partition.Validate(); err != nil {
		return err
	}
	if c.AdmissionCap < 1 {
		return fmt.Errorf("%w: admission cap %d", ErrInvalidConfig, c.AdmissionCap)
	}
	if c.DefaultMoveDuration < 0 || c.StaggerDelay < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.TickInterval <= 0 || c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: tick and heartbeat intervals must be positive", ErrInvalidConfig)
	}
	if c.DeadLinkMultiplier < 1 {
		return fmt.Errorf("%w: dead-link multiplier %d", ErrInvalidConfig, c.DeadLinkMultiplier)
	}
	seen := make(map[string]struct{}, len(c.Links))
	for _, lc := range c.Links {
		if _, dup := seen[lc.Name]; dup {
			return fmt.Errorf("%w: duplicate link %q", ErrInvalidConfig, lc.Name)
		}
		seen[lc.Name] = struct{}{}
	}
	for _, name := range c.Partition.LinkNames() {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("%w: no transport for link %q", ErrInvalidConfig, name)
		}
	}
	if len(c.Links) != len(c.Partition.Links) {
		return fmt.Errorf("%w: %d transports for %d links", ErrInvalidConfig, len(c.Links), len(c.Partition.Links))
	}
	return nil
}

// DeadAfter is the silence after which a live link is declared dead.
func (c Config) DeadAfter() time.Duration {
	return time.Duration(c.DeadLinkMultiplier) * c.HeartbeatInterval
}
