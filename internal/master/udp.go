package master

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Submitter runs one command line against the master.
type Submitter interface {
	Submit(ctx context.Context, line string) (string, bool, error)
}

// UDPIngress serves one command per datagram and answers with one datagram.
type UDPIngress struct {
	conn    net.PacketConn
	timeout time.Duration
}

func ListenUDP(addr string, timeout time.Duration) (*UDPIngress, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("master: udp listen %s: %w", addr, err)
	}
	if timeout <= 0 {
		timeout = DefaultIngressReplyTimeout
	}
	return &UDPIngress{conn: conn, timeout: timeout}, nil
}

func (u *UDPIngress) Addr() net.Addr {
	return u.conn.LocalAddr()
}

// Serve reads datagrams until ctx ends. It returns nil on ctx cancellation and the
// read error otherwise.
func (u *UDPIngress) Serve(ctx context.Context, sub Submitter) error {
	go func() {
		<-ctx.Done()
		_ = u.conn.Close()
	}()
	buf := make([]byte, protocol.MaxLineLen+1)
	for {
		n, from, err := u.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("master: udp read: %w", err)
		}
		if n > protocol.MaxLineLen {
			log.Debug().Str("from", from.String()).Int("bytes", n).Msg("master.UDPIngress.Serve oversized datagram")
			continue
		}
		line := strings.TrimSpace(string(buf[:n]))
		reqCtx, cancel := context.WithTimeout(ctx, u.timeout)
		reply, ok, err := sub.Submit(reqCtx, line)
		cancel()
		if err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			log.Warn().Str("from", from.String()).Err(err).Msg("master.UDPIngress.Serve submit failed")
			continue
		}
		if !ok {
			continue
		}
		if _, err := u.conn.WriteTo([]byte(reply), from); err != nil {
			log.Debug().Str("to", from.String()).Err(err).Msg("master.UDPIngress.Serve reply failed")
		}
	}
}
