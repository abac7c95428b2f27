// Package relay drives the relay channels behind each actuator.
package relay

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

var (
	ErrUnknownDriver   = errors.New("relay: unknown driver")
	ErrPinNotRequested = errors.New("relay: pin not requested")
)

// Driver energizes or de-energizes one relay channel. on is the logical state;
// polarity is the driver's concern.
type Driver interface {
	Set(pin int, on bool) error
}

// Write records one Set call.
type Write struct {
	Pin int
	On  bool
}

// Memory keeps channel state in memory. It backs simulated nodes and tests.
type Memory struct {
	mu      sync.Mutex
	levels  map[int]bool
	history []Write
	fail    map[int]error
}

func NewMemory() *Memory {
	return &Memory{
		levels: make(map[int]bool),
		fail:   make(map[int]error),
	}
}

func (m *Memory) Set(pin int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[pin]; ok {
		return err
	}
	m.levels[pin] = on
	m.history = append(m.history, Write{Pin: pin, On: on})
	return nil
}

// Energized reports the logical state of pin.
func (m *Memory) Energized(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// EnergizedPins returns every pin currently on, ascending.
func (m *Memory) EnergizedPins() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0)
	for pin, on := range m.levels {
		if on {
			out = append(out, pin)
		}
	}
	sort.Ints(out)
	return out
}

func (m *Memory) History() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.history))
	copy(out, m.history)
	return out
}

// FailPin makes every later Set on pin return err; a nil err clears the fault.
func (m *Memory) FailPin(pin int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, pin)
		return
	}
	m.fail[pin] = err
}

// Line is one requested output line. *gpiocdev.Line satisfies it.
type Line interface {
	SetValue(value int) error
	Close() error
}

// Requester requests offset on chip as an output at the given initial level.
type Requester func(chip string, offset, value int, consumer string) (Line, error)

// RequestCdev requests the line through the GPIO character device.
func RequestCdev(chip string, offset, value int, consumer string) (Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(value), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, err
	}
	return l, nil
}

const (
	DefaultChip     = "gpiochip0"
	DefaultConsumer = "kinectl"
)

// GPIO drives relay channels as character-device output lines held for the life of
// the driver. Relay boards wired active-low are energized by a low line.
type GPIO struct {
	chip      string
	activeLow bool
	mu        sync.Mutex
	lines     map[int]Line
}

// OpenGPIO requests every pin as an output at the de-energized level. On failure
// the lines already requested are released.
func OpenGPIO(chip string, activeLow bool, pins []int, request Requester) (*GPIO, error) {
	if chip == "" {
		chip = DefaultChip
	}
	if request == nil {
		request = RequestCdev
	}
	g := &GPIO{chip: chip, activeLow: activeLow, lines: make(map[int]Line, len(pins))}
	for _, pin := range pins {
		if _, dup := g.lines[pin]; dup {
			continue
		}
		l, err := request(chip, pin, g.level(false), DefaultConsumer)
		if err != nil {
			_ = g.Close()
			return nil, fmt.Errorf("relay: request %s line %d: %w", chip, pin, err)
		}
		g.lines[pin] = l
	}
	return g, nil
}

func (g *GPIO) level(on bool) int {
	if on != g.activeLow {
		return 1
	}
	return 0
}

func (g *GPIO) Set(pin int, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.lines[pin]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPinNotRequested, pin)
	}
	if err := l.SetValue(g.level(on)); err != nil {
		return fmt.Errorf("relay: set %s line %d: %w", g.chip, pin, err)
	}
	return nil
}

// Close de-energizes and releases every line.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for pin, l := range g.lines {
		if err := l.SetValue(g.level(false)); err != nil {
			errs = append(errs, fmt.Errorf("relay: release line %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("relay: close line %d: %w", pin, err))
		}
		delete(g.lines, pin)
	}
	return errors.Join(errs...)
}

// Kind names a driver in configuration.
type Kind string

const (
	KindMemory Kind = "memory"
	KindGPIO   Kind = "gpiocdev"
)

// ParseKind accepts a configured driver name.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindMemory, KindGPIO:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, raw)
	}
}

// New builds the configured driver and claims pins.
func New(kind Kind, chip string, activeLow bool, pins []int) (Driver, error) {
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindGPIO:
		return OpenGPIO(chip, activeLow, pins, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, kind)
	}
}
