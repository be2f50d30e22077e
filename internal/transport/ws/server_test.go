package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/search"
)

func dial(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return m
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_StreamsProgress(t *testing.T) {
	h := NewHub(nil)
	h.SetRun("run-7")
	conn, done := dial(t, h)
	defer done()

	if m := readMsg(t, conn); m.Type != TypeHello || m.RunID != "run-7" {
		t.Fatalf("hello=%+v", m)
	}
	waitClients(t, h, 1)

	h.PublishProgress("run-7", 2, search.Progress{Expanded: 100, Open: 5, Weight: 1.5})
	m := readMsg(t, conn)
	if m.Type != TypeProgress || m.Chunk != 2 || m.Progress == nil || m.Progress.Expanded != 100 || m.Progress.Weight != 1.5 {
		t.Fatalf("progress=%+v", m)
	}

	h.PublishChunk("run-7", planner.ChunkStats{Index: 2, Blocks: 9, Cost: 40})
	m = readMsg(t, conn)
	if m.Type != TypeChunk || m.Stats == nil || m.Stats.Blocks != 9 || m.Stats.Cost != 40 {
		t.Fatalf("chunk=%+v", m)
	}

	h.PublishFailure("run-7", 3, errors.New("no solution"))
	if m := readMsg(t, conn); m.Type != TypeFailed || m.Error != "no solution" {
		t.Fatalf("failure=%+v", m)
	}

	h.PublishDone(&planner.Plan{RunID: "run-7", Actions: nil, Cost: 12})
	if m := readMsg(t, conn); m.Type != TypeDone || m.Cost != 12 {
		t.Fatalf("done=%+v", m)
	}
}

func TestHub_CloseDisconnects(t *testing.T) {
	h := NewHub(nil)
	conn, done := dial(t, h)
	defer done()
	readMsg(t, conn)
	waitClients(t, h, 1)

	h.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("want normal close, got %v", err)
	}
	waitClients(t, h, 0)

	// Broadcasting after close is a no-op.
	h.PublishProgress("x", 0, search.Progress{})
}

func TestHub_LoopbackOnly(t *testing.T) {
	h := NewHub(nil)
	h.LoopbackOnly = true
	rw := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "203.0.113.9:5000"
	h.Handler()(rw, r)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("code=%d want 403", rw.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"::1":          true,
		"10.0.0.1:80":  false,
		"bogus":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
