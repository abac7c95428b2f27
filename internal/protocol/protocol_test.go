package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/kinectl/internal/testutil/testlog"
)

func TestParseCommandShapes(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		line string
		want Message
	}{
		{"BLOCK:5:UP", Message{Kind: KindBlock, Block: 5, Action: ActionUp}},
		{"block 3 up 2000", Message{Kind: KindBlock, Block: 3, Action: ActionUp, Duration: 2 * time.Second}},
		{"BLOCK -1 STOP", Message{Kind: KindBlock, Block: -1, Action: ActionStop}},
		{"BLOCK 3 UP 0", Message{Kind: KindBlock, Block: 3, Action: ActionUp}},
		{"BLOCK:99999999999999999999:UP", Message{Kind: KindBlock, Block: 0, Action: ActionUp}},
		{"ALL:DOWN", Message{Kind: KindAll, Action: ActionDown}},
		{"RING OUTER STOP", Message{Kind: KindRing, Ring: RingOuter, Action: ActionStop}},
		{"RING:inner:up", Message{Kind: KindRing, Ring: RingInner, Action: ActionUp}},
		{" PING \r", Message{Kind: KindPing}},
		{"STATUS", Message{Kind: KindStatus}},
		{"ESTOP", Message{Kind: KindEStop}},
		{"PONG", Message{Kind: KindPong}},
		{"ACK:BLOCK:5:UP", Message{Kind: KindAck, Detail: "BLOCK:5:UP"}},
		{"ERR:UNKNOWN_BLOCK:12", Message{Kind: KindErr, Code: CodeUnknownBlock, Block: 12}},
		{"ERR:BLOCK:4:TIMEOUT", Message{Kind: KindErr, Code: CodeTimeout, Block: 4}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.line)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.line, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %+v want %+v", tc.line, got, tc.want)
		}
	}
}

func TestParseRejectsMalformedLines(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		line string
		want error
	}{
		{"", ErrEmpty},
		{"   ", ErrEmpty},
		{"LED:MODE:RAINBOW", ErrUnknownVerb},
		{"JUMP 1", ErrUnknownVerb},
		{"BLOCK:x:UP", ErrMalformed},
		{"BLOCK:1", ErrMalformed},
		{"BLOCK:1:LEFT", ErrMalformed},
		{"BLOCK:1:UP:99999999999999999999", ErrMalformed},
		{"BLOCK:1:UP:-5", ErrMalformed},
		{"BLOCK:1:UP:100:9", ErrMalformed},
		{"ALL", ErrMalformed},
		{"ALL:UP:NOW", ErrMalformed},
		{"RING:MIDDLE:UP", ErrMalformed},
		{"PING:1", ErrMalformed},
		{"ERR:TIMEOUT", ErrMalformed},
		{strings.Repeat("A", MaxLineLen+1), ErrLineTooLong},
	}
	for _, tc := range cases {
		if _, err := Parse(tc.line); !errors.Is(err, tc.want) {
			t.Fatalf("Parse(%q) err=%v want %v", tc.line, err, tc.want)
		}
	}
}

func TestEncodeCanonicalForms(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		msg  Message
		want string
	}{
		{Block(5, ActionUp), "BLOCK:5:UP"},
		{Message{Kind: KindBlock, Block: 3, Action: ActionDown, Duration: 2500 * time.Millisecond}, "BLOCK:3:DOWN:2500"},
		{All(ActionStop), "ALL:STOP"},
		{Message{Kind: KindRing, Ring: RingInner, Action: ActionUp}, "RING:INNER:UP"},
		{Ping(), "PING"},
		{Pong(), "PONG"},
		{Message{Kind: KindStatus}, "STATUS"},
		{Ack(Block(7, ActionStop)), "ACK:BLOCK:7:STOP"},
		{Message{Kind: KindErr, Code: CodeTimeout, Block: 9}, "ERR:BLOCK:9:TIMEOUT"},
		{Message{Kind: KindErr, Code: CodeFault, Block: 5}, "ERR:BLOCK:5:FAULT"},
		{Message{Kind: KindErr, Code: CodeCapacityExceeded, Block: 2}, "ERR:CAPACITY_EXCEEDED:2"},
	}
	for _, tc := range cases {
		if got := tc.msg.Encode(); got != tc.want {
			t.Fatalf("Encode(%+v) = %q want %q", tc.msg, got, tc.want)
		}
	}
	if got := string(All(ActionUp).Wire()); got != "ALL:UP\n" {
		t.Fatalf("unexpected wire form: %q", got)
	}
}

func TestParseEncodeIsStableForCanonicalLines(t *testing.T) {
	testlog.Start(t)
	for _, line := range []string{"BLOCK:12:DOWN:750", "RING:OUTER:UP", "ERR:BLOCK:4:TIMEOUT", "ACK:ALL:STOP"} {
		msg, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q): %v", line, err)
		}
		if got := msg.Encode(); got != line {
			t.Fatalf("Encode(Parse(%q)) = %q", line, got)
		}
	}
}

func TestReplyLines(t *testing.T) {
	testlog.Start(t)
	if got := PongLine([]LinkStatus{{Name: "mega1", Alive: true}, {Name: "mega2"}}); got != "PONG:mega1=OK,mega2=DEAD" {
		t.Fatalf("unexpected pong line: %q", got)
	}
	got := StateLine([]BlockStatus{{ID: 1, Action: ActionUp}, {ID: 2, Action: ActionStop}, {ID: 3, Action: ActionDown}})
	if got != "STATE:1:UP,2:STOP,3:DOWN" {
		t.Fatalf("unexpected state line: %q", got)
	}
	if got := ErrLine(CodeInvalidBlock, 99); got != "ERR:INVALID_BLOCK:99" {
		t.Fatalf("unexpected err line: %q", got)
	}
}
