package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Tokenize splits a command line on ':' and whitespace.
func Tokenize(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ':' || unicode.IsSpace(r)
	})
}

// Parse decodes one command line into a Message.
//
// Errors wrap ErrEmpty, ErrLineTooLong, ErrUnknownVerb or ErrMalformed. Callers on the
// command path drop lines that fail to parse without replying.
func Parse(line string) (Message, error) {
	if len(line) > MaxLineLen {
		return Message{}, ErrLineTooLong
	}
	fields := Tokenize(line)
	if len(fields) == 0 {
		return Message{}, ErrEmpty
	}

	verb := strings.ToUpper(fields[0])
	args := fields[1:]
	var (
		msg Message
		err error
	)
	switch verb {
	case "BLOCK":
		msg, err = parseBlock(args)
	case "ALL":
		msg, err = parseAll(args)
	case "RING":
		msg, err = parseRing(args)
	case "PING":
		msg, err = parseBare(KindPing, args)
	case "STATUS":
		msg, err = parseBare(KindStatus, args)
	case "ESTOP":
		msg, err = parseBare(KindEStop, args)
	case "PONG":
		msg = Message{Kind: KindPong, Detail: strings.Join(args, ":")}
	case "ACK":
		msg, err = parseAck(args)
	case "ERR":
		msg, err = parseErr(args)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownVerb, fields[0])
	}
	if err != nil {
		return Message{}, err
	}
	return msg, msg.Validate()
}

func parseBlock(args []string) (Message, error) {
	if len(args) < 2 || len(args) > 3 {
		return Message{}, fmt.Errorf("%w: BLOCK expects id, action and optional duration", ErrMalformed)
	}
	id, err := parseBlockID(args[0])
	if err != nil {
		return Message{}, err
	}
	action, err := ParseAction(args[1])
	if err != nil {
		return Message{}, err
	}
	msg := Message{Kind: KindBlock, Block: id, Action: action}
	if len(args) == 3 {
		d, err := ParseDurationMillis(args[2])
		if err != nil {
			return Message{}, err
		}
		msg.Duration = d
	}
	return msg, nil
}

// parseBlockID accepts any decimal id. Ids outside the int range decode as block 0,
// which no partition owns, so they are answered with INVALID_BLOCK rather than
// dropped.
func parseBlockID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: block id %q", ErrMalformed, raw)
}

// ParseDurationMillis decodes a move duration in milliseconds. Zero selects the
// default move duration; negative values are malformed.
func ParseDurationMillis(raw string) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms < 0 || ms > MaxDurationMillis {
		return 0, fmt.Errorf("%w: duration %q", ErrMalformed, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseAll(args []string) (Message, error) {
	if len(args) != 1 {
		return Message{}, fmt.Errorf("%w: ALL expects one action", ErrMalformed)
	}
	action, err := ParseAction(args[0])
	if err != nil {
		return Message{}, err
	}
	return All(action), nil
}

func parseRing(args []string) (Message, error) {
	if len(args) != 2 {
		return Message{}, fmt.Errorf("%w: RING expects ring and action", ErrMalformed)
	}
	ring, err := ParseRing(args[0])
	if err != nil {
		return Message{}, err
	}
	action, err := ParseAction(args[1])
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindRing, Ring: ring, Action: action}, nil
}

func parseBare(kind Kind, args []string) (Message, error) {
	if len(args) != 0 {
		return Message{}, fmt.Errorf("%w: %s takes no arguments", ErrMalformed, kind)
	}
	return Message{Kind: kind}, nil
}

func parseAck(args []string) (Message, error) {
	if len(args) == 0 {
		return Message{}, fmt.Errorf("%w: empty ACK", ErrMalformed)
	}
	return Message{Kind: KindAck, Detail: strings.Join(args, ":")}, nil
}

// parseErr accepts ERR:<CODE>:<n> and ERR:BLOCK:<id>:<CODE>.
func parseErr(args []string) (Message, error) {
	if len(args) == 3 && strings.EqualFold(args[0], "BLOCK") {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return Message{}, fmt.Errorf("%w: block id %q", ErrMalformed, args[1])
		}
		return Message{Kind: KindErr, Code: ErrorCode(strings.ToUpper(args[2])), Block: id}, nil
	}
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return Message{}, fmt.Errorf("%w: error value %q", ErrMalformed, args[1])
		}
		return Message{Kind: KindErr, Code: ErrorCode(strings.ToUpper(args[0])), Block: n}, nil
	}
	return Message{}, fmt.Errorf("%w: ERR shape", ErrMalformed)
}
