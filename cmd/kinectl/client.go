package main

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/kinectl/internal/protocol"
)

var ErrNoReply = errors.New("kinectl: no reply")

// exchange sends one command datagram to the master and waits for its reply.
func exchange(addr string, msg protocol.Message, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("udp", addr, timeout)
	if err != nil {
		return "", fmt.Errorf("kinectl: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(msg.Encode())); err != nil {
		return "", fmt.Errorf("kinectl: send: %w", err)
	}
	buf := make([]byte, protocol.MaxLineLen+1)
	n, err := conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", fmt.Errorf("%w within %v", ErrNoReply, timeout)
		}
		return "", fmt.Errorf("kinectl: read: %w", err)
	}
	return string(buf[:n]), nil
}
