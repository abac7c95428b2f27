package protocol

import "errors"

var (
	ErrEmpty       = errors.New("protocol: empty line")
	ErrLineTooLong = errors.New("protocol: line too long")
	ErrUnknownVerb = errors.New("protocol: unknown verb")
	ErrMalformed   = errors.New("protocol: malformed command")
	ErrInvalidKind = errors.New("protocol: invalid message kind")
)
