package master

import (
	"context"
	"fmt"

	"github.com/danmuck/kinectl/internal/link"
)

// Inbound is one line received from a node.
type Inbound struct {
	Link string
	Line string
}

// LinkSet is the master's set of downstream link streams.
type LinkSet struct {
	streams map[string]*link.Stream
	order   []string
}

// DialLinks opens every configured link. Each stream reconnects on its own until
// ctx ends.
func DialLinks(ctx context.Context, cfgs []link.Config) (*LinkSet, error) {
	ls := &LinkSet{streams: make(map[string]*link.Stream, len(cfgs))}
	for _, cfg := range cfgs {
		s, err := link.Dial(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("master: dial link %q: %w", cfg.Name, err)
		}
		ls.streams[cfg.Name] = s
		ls.order = append(ls.order, cfg.Name)
	}
	return ls, nil
}

func (l *LinkSet) Send(name, line string) error {
	s, ok := l.streams[name]
	if !ok {
		return fmt.Errorf("%w: %s", link.ErrNotConnected, name)
	}
	return s.Send(line)
}

// Inbound merges the lines of every link into one channel for the control loop.
func (l *LinkSet) Inbound(ctx context.Context) <-chan Inbound {
	out := make(chan Inbound, 64)
	for _, name := range l.order {
		s := l.streams[name]
		go func(name string, s *link.Stream) {
			for {
				select {
				case <-ctx.Done():
					return
				case line := <-s.Lines():
					select {
					case out <- Inbound{Link: name, Line: line}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(name, s)
	}
	return out
}
