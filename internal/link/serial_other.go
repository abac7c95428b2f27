//go:build !linux

package link

import (
	"fmt"
	"io"
	"runtime"
)

// OpenSerial is only implemented on linux; other platforms use TCP links.
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	return nil, fmt.Errorf("%w: serial links unsupported on %s (device %s, baud %d)",
		ErrInvalidTransport, runtime.GOOS, device, baud)
}
