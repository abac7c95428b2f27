package master

import (
	"sync"
	"testing"
	"time"

	"github.com/danmuck/kinectl/internal/timing"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type sentLine struct {
	link string
	line string
}

// recordingLinks captures every forwarded line.
type recordingLinks struct {
	mu   sync.Mutex
	sent []sentLine
	fail map[string]error
}

func (r *recordingLinks) Send(link, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentLine{link: link, line: line})
	return r.fail[link]
}

func (r *recordingLinks) lines() []sentLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentLine, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *recordingLinks) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

func (r *recordingLinks) count(link, line string) int {
	n := 0
	for _, s := range r.lines() {
		if s.link == link && s.line == line {
			n++
		}
	}
	return n
}

func newTestController(t *testing.T, mutate func(*Config)) (*Controller, *recordingLinks, *timing.Manual) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := timing.NewManual(epoch)
	links := &recordingLinks{}
	ctl, err := NewController(cfg, clock, links)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctl, links, clock
}

func expectLines(t *testing.T, got []sentLine, want ...sentLine) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sent %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent[%d]=%v want %v (all=%v)", i, got[i], want[i], got)
		}
	}
}
