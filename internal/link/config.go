package link

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotConnected     = errors.New("link: not connected")
	ErrInvalidTransport = errors.New("link: invalid transport")
	ErrInvalidConfig    = errors.New("link: invalid config")
)

// Transport selects the byte stream under a link.
type Transport string

const (
	TransportSerial Transport = "serial"
	TransportTCP    Transport = "tcp"
)

// DefaultBaud is the serial rate shared by the master and the nodes (8N1).
const DefaultBaud = 115200

// Config describes one point-to-point link.
//
// For TransportSerial, Device and Baud select the port. For TransportTCP the master
// dials Address and a node listens on it.
type Config struct {
	Name         string
	Transport    Transport
	Device       string
	Baud         int
	Address      string
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	QueueDepth   int
	Backoff      BackoffConfig
}

// DefaultConfig returns link defaults for a serial link.
func DefaultConfig() Config {
	return Config{
		Transport:    TransportSerial,
		Baud:         DefaultBaud,
		WriteTimeout: 250 * time.Millisecond,
		DialTimeout:  2 * time.Second,
		QueueDepth:   64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(string(c.Transport)) == "" {
		c.Transport = def.Transport
	}
	if c.Baud <= 0 {
		c.Baud = def.Baud
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportSerial:
		if strings.TrimSpace(c.Device) == "" {
			return fmt.Errorf("%w: link %q serial device required", ErrInvalidConfig, c.Name)
		}
	case TransportTCP:
		if strings.TrimSpace(c.Address) == "" {
			return fmt.Errorf("%w: link %q tcp address required", ErrInvalidConfig, c.Name)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransport, c.Transport)
	}
	return nil
}
