package master

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/kinectl/internal/testutil/testlog"
	"github.com/danmuck/kinectl/internal/timing"
	"github.com/gorilla/websocket"
)

type runningService struct {
	svc        *Service
	links      *recordingLinks
	inbound    chan Inbound
	ingressErr chan error
	cancel     context.CancelFunc
	done       chan error
}

func startService(t *testing.T) *runningService {
	t.Helper()
	links := &recordingLinks{}
	svc, err := NewService(DefaultConfig(), timing.NewManual(epoch), links)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningService{
		svc:        svc,
		links:      links,
		inbound:    make(chan Inbound),
		ingressErr: make(chan error),
		cancel:     cancel,
		done:       make(chan error, 1),
	}
	go func() { rs.done <- svc.Serve(ctx, rs.inbound, rs.ingressErr) }()
	t.Cleanup(func() {
		cancel()
		<-rs.done
	})
	deadline := time.Now().Add(2 * time.Second)
	for !svc.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("service never became ready")
		}
		time.Sleep(time.Millisecond)
	}
	return rs
}

func TestServiceSubmitAndInbound(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	ctx := context.Background()

	reply, ok, err := rs.svc.Submit(ctx, "BLOCK:10:UP")
	if err != nil || !ok || reply != "ACK:BLOCK:10:UP" {
		t.Fatalf("submit: reply=%q ok=%v err=%v", reply, ok, err)
	}
	rs.inbound <- Inbound{Link: "mega2", Line: "PONG"}
	st, err := rs.svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if st.Active != 1 || !st.Links["mega2"] {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestServiceIngressLossTriggersEmergencyStop(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	ctx := context.Background()
	rs.svc.Submit(ctx, "BLOCK:1:UP")
	rs.svc.Submit(ctx, "BLOCK:9:UP")

	rs.ingressErr <- errors.New("udp socket closed")
	st, err := rs.svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if st.Active != 0 {
		t.Fatalf("ingress loss left active=%d", st.Active)
	}
	if rs.links.count("mega1", "ALL:STOP") != 1 || rs.links.count("mega2", "ALL:STOP") != 1 {
		t.Fatalf("expected ALL:STOP on both links: %v", rs.links.lines())
	}
}

func TestServiceShutdownStopsEverything(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	rs.svc.Submit(context.Background(), "BLOCK:3:DOWN")
	rs.cancel()
	if err := <-rs.done; err != nil {
		t.Fatalf("serve: %v", err)
	}
	rs.done <- nil
	if rs.links.count("mega1", "ALL:STOP") != 1 || rs.links.count("mega2", "ALL:STOP") != 1 {
		t.Fatalf("shutdown did not stop both links: %v", rs.links.lines())
	}
	if _, _, err := rs.svc.Submit(context.Background(), "PING"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after shutdown, got %v", err)
	}
}

func TestHTTPBlockAPI(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	srv := httptest.NewServer(NewHTTPHandler(DefaultConfig(), rs.svc))
	defer srv.Close()

	cases := []struct {
		query  string
		status int
	}{
		{"num=3&action=UP&duration=2000", http.StatusOK},
		{"num=3&action=UP", http.StatusOK},
		{"num=4&action=DOWN", http.StatusOK},
		{"num=5&action=UP", http.StatusConflict},
		{"num=99&action=UP", http.StatusBadRequest},
		{"num=abc&action=UP", http.StatusBadRequest},
		{"num=5&action=LEFT", http.StatusBadRequest},
		{"num=5&action=UP&duration=-1", http.StatusBadRequest},
		{"num=4&action=DOWN&duration=0", http.StatusOK},
		{"num=4&action=STOP", http.StatusOK},
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+"/api/block?"+tc.query, "text/plain", nil)
		if err != nil {
			t.Fatalf("post %s: %v", tc.query, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("POST /api/block?%s status=%d want %d", tc.query, resp.StatusCode, tc.status)
		}
	}

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var st struct {
		Active int             `json:"active"`
		Cap    int             `json:"cap"`
		Blocks []int           `json:"blocks"`
		Links  map[string]bool `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Active != 1 || st.Cap != 2 || len(st.Blocks) != 1 || st.Blocks[0] != 3 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if _, ok := st.Links["mega1"]; !ok {
		t.Fatalf("links missing from status: %+v", st)
	}

	stop, err := http.Post(srv.URL+"/api/stop", "text/plain", nil)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	stop.Body.Close()
	if stop.StatusCode != http.StatusOK {
		t.Fatalf("stop status=%d", stop.StatusCode)
	}
	snap, _ := rs.svc.Snapshot(context.Background())
	if snap.Active != 0 {
		t.Fatalf("stop left active=%d", snap.Active)
	}
}

func TestHTTPCommandReadyAndHealth(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	srv := httptest.NewServer(NewHTTPHandler(DefaultConfig(), rs.svc))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/command", "text/plain", strings.NewReader("PING\n"))
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	var body struct {
		Reply string `json:"reply"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK || body.Reply != "PONG:mega1=DEAD,mega2=DEAD" {
		t.Fatalf("command reply=%q status=%d err=%v", body.Reply, resp.StatusCode, err)
	}

	resp, err = http.Post(srv.URL+"/api/command", "text/plain", strings.NewReader("WAVE"))
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown verb status=%d", resp.StatusCode)
	}

	for _, path := range []string{"/ready", "/health", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, resp.StatusCode)
		}
	}
}

func TestWebSocketCommands(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	srv := httptest.NewServer(NewHTTPHandler(DefaultConfig(), rs.svc))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	for _, step := range []struct{ send, want string }{
		{"BLOCK:6:DOWN", "ACK:BLOCK:6:DOWN"},
		{"NOPE", ""},
		{"STATUS", "STATE:1:STOP,2:STOP,3:STOP,4:STOP,5:STOP,6:DOWN,7:STOP,8:STOP,9:STOP,10:STOP,11:STOP,12:STOP,13:STOP,14:STOP,15:STOP"},
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(step.send)); err != nil {
			t.Fatalf("write %q: %v", step.send, err)
		}
		if step.want == "" {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read reply to %q: %v", step.send, err)
		}
		if string(data) != step.want {
			t.Fatalf("reply to %q = %q want %q", step.send, data, step.want)
		}
	}
}

func TestBrowserOriginsOnWebSocketAndHealth(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	srv := httptest.NewServer(NewHTTPHandler(DefaultConfig(), rs.svc))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://localhost:3000"}})
	if err != nil {
		t.Fatalf("kiosk origin refused: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("BLOCK:2:UP")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn.ReadMessage(); err != nil || string(data) != "ACK:BLOCK:2:UP" {
		t.Fatalf("kiosk reply=%q err=%v", data, err)
	}
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://elsewhere.example"}})
	if err == nil {
		t.Fatalf("foreign origin accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin response: %+v", resp)
	}

	for _, path := range []string{"/health", "/metrics", "/api/status"} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		req.Header.Set("Origin", "http://localhost:3000")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Fatalf("GET %s allow-origin=%q", path, got)
		}
	}
}

func TestUDPIngressOneReplyPerDatagram(t *testing.T) {
	testlog.Start(t)
	rs := startService(t)
	udp, err := ListenUDP("127.0.0.1:0", time.Second)
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- udp.Serve(ctx, rs.svc) }()

	conn, err := net.Dial("udp", udp.Addr().String())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 512)
	for _, step := range []struct{ send, want string }{
		{"BLOCK 13 UP\n", "ACK:BLOCK:13:UP"},
		{"garbage", ""},
		{"BLOCK:20:UP", "ERR:INVALID_BLOCK:20"},
	} {
		if _, err := conn.Write([]byte(step.send)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if step.want == "" {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read reply to %q: %v", step.send, err)
		}
		if got := string(buf[:n]); got != step.want {
			t.Fatalf("reply to %q = %q want %q", step.send, got, step.want)
		}
	}

	cancel()
	if err := <-served; err != nil {
		t.Fatalf("udp serve: %v", err)
	}
}
