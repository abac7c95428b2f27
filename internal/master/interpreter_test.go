package master

import (
	"testing"

	"github.com/danmuck/kinectl/internal/testutil/testlog"
)

func TestHandleRepliesOncePerWellFormedCommand(t *testing.T) {
	testlog.Start(t)
	ctl, _, _ := newTestController(t, nil)
	cases := []struct {
		line  string
		reply string
		ok    bool
	}{
		{"PING", "PONG:mega1=DEAD,mega2=DEAD", true},
		{"BLOCK 5 UP", "ACK:BLOCK:5:UP", true},
		{"BLOCK:5:UP", "ACK:BLOCK:5:UP", true},
		{"BLOCK:16:UP", "ERR:INVALID_BLOCK:16", true},
		{"BLOCK:0:STOP", "ERR:INVALID_BLOCK:0", true},
		{"BLOCK 99999999999999999999 UP", "ERR:INVALID_BLOCK:0", true},
		{"BLOCK:11:DOWN", "ACK:BLOCK:11:DOWN", true},
		{"BLOCK:12:DOWN", "ERR:CAPACITY_EXCEEDED:2", true},
		{"STATUS", "STATE:1:STOP,2:STOP,3:STOP,4:STOP,5:UP,6:STOP,7:STOP,8:STOP,9:STOP,10:STOP,11:DOWN,12:STOP,13:STOP,14:STOP,15:STOP", true},
		{"RING:INNER:UP", "ERR:CAPACITY_EXCEEDED:2", true},
		{"JUMP 5", "", false},
		{"BLOCK 5 SIDEWAYS", "", false},
		{"PONG", "", false},
		{"ERR:BLOCK:1:TIMEOUT", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		reply, ok := ctl.Handle(tc.line)
		if ok != tc.ok || reply != tc.reply {
			t.Fatalf("Handle(%q) = %q,%v want %q,%v", tc.line, reply, ok, tc.reply, tc.ok)
		}
	}
}

func TestAllStopIsEmergencyStop(t *testing.T) {
	testlog.Start(t)
	ctl, links, clock := newTestController(t, nil)
	ctl.Handle("BLOCK:1:UP:5000")
	ctl.Handle("BLOCK:15:DOWN")
	links.reset()

	if reply, _ := ctl.Handle("ALL STOP"); reply != "ACK:ALL:STOP" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	expectLines(t, links.lines(), sentLine{"mega1", "ALL:STOP"}, sentLine{"mega2", "ALL:STOP"})
	if len(clock.Sleeps()) != 0 {
		t.Fatalf("emergency stop waited: %v", clock.Sleeps())
	}
	st := ctl.Status()
	if st.Active != 0 || len(st.Blocks) != 0 {
		t.Fatalf("emergency stop left active blocks: %+v", st)
	}
	if b := mustBlock(t, ctl.Router(), 1); b.HasDeadline {
		t.Fatalf("deadline survived emergency stop")
	}

	links.reset()
	if reply, _ := ctl.Handle("ESTOP"); reply != "ACK:ESTOP" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	expectLines(t, links.lines(), sentLine{"mega1", "ALL:STOP"}, sentLine{"mega2", "ALL:STOP"})
}

func TestAllMoveAdmitsAscendingUpToCap(t *testing.T) {
	testlog.Start(t)
	ctl, links, _ := newTestController(t, nil)
	if reply, _ := ctl.Handle("ALL:UP"); reply != "ERR:CAPACITY_EXCEEDED:2" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	expectLines(t, links.lines(), sentLine{"mega1", "BLOCK:1:UP"}, sentLine{"mega1", "BLOCK:2:UP"})

	ctl2, _, _ := newTestController(t, func(c *Config) { c.AdmissionCap = 15 })
	if reply, _ := ctl2.Handle("ALL:DOWN"); reply != "ACK:ALL:DOWN" {
		t.Fatalf("unexpected reply with room for every block: %q", reply)
	}
	if ctl2.Router().Active() != 15 {
		t.Fatalf("active=%d", ctl2.Router().Active())
	}
}

func TestStatusReportsLinksAndBlocks(t *testing.T) {
	testlog.Start(t)
	ctl, _, clock := newTestController(t, nil)
	ctl.Observe("mega2", "PONG", clock.Now())
	ctl.Handle("BLOCK:9:UP")
	st := ctl.Status()
	if st.Active != 1 || st.Cap != DefaultAdmissionCap || len(st.Blocks) != 1 || st.Blocks[0] != 9 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.States[9] != "UP" || st.States[1] != "STOP" {
		t.Fatalf("unexpected states: %v", st.States)
	}
	if !st.Links["mega2"] || st.Links["mega1"] {
		t.Fatalf("unexpected links: %v", st.Links)
	}
	if reply, _ := ctl.Handle("PING"); reply != "PONG:mega1=DEAD,mega2=OK" {
		t.Fatalf("unexpected pong: %q", reply)
	}
}

func TestZeroDurationSelectsDefaultMove(t *testing.T) {
	testlog.Start(t)
	ctl, _, clock := newTestController(t, nil)
	if reply, ok := ctl.Handle("BLOCK 3 UP 0"); !ok || reply != "ACK:BLOCK:3:UP" {
		t.Fatalf("zero duration reply=%q ok=%v", reply, ok)
	}
	b := mustBlock(t, ctl.Router(), 3)
	if !b.HasDeadline || !b.Deadline.Equal(clock.Now().Add(DefaultMoveDuration)) {
		t.Fatalf("zero duration did not arm the default move: %+v", b)
	}
}
