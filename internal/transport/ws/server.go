// Package ws streams planner progress to websocket watchers.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/search"
)

const (
	TypeHello    = "HELLO"
	TypeProgress = "PROGRESS"
	TypeChunk    = "CHUNK"
	TypeDone     = "DONE"
	TypeFailed   = "FAILED"
)

// Message is one frame sent to watchers.
type Message struct {
	Type     string              `json:"type"`
	RunID    string              `json:"run_id,omitempty"`
	Chunk    int                 `json:"chunk"`
	Progress *search.Progress    `json:"progress,omitempty"`
	Stats    *planner.ChunkStats `json:"stats,omitempty"`
	Actions  int                 `json:"actions,omitempty"`
	Cost     int                 `json:"cost,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type client struct {
	out     chan []byte
	dropped atomic.Uint64
}

// Hub fans messages out to connected watchers. A slow watcher loses frames
// rather than stalling the planner.
type Hub struct {
	log *log.Logger

	// LoopbackOnly rejects non-loopback remotes.
	LoopbackOnly bool

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uint64]*client
	nextID  atomic.Uint64
	hello   Message
	closed  bool
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[uint64]*client{},
		hello:   Message{Type: TypeHello},
	}
}

// SetRun sets the run id announced to new watchers.
func (h *Hub) SetRun(runID string) {
	h.mu.Lock()
	h.hello = Message{Type: TypeHello, RunID: runID}
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if h.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, c, ok := h.join()
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer h.leave(id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-c.out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
						cancel()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: watchers send nothing useful, but reads surface the close.
		go func() {
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		<-ctx.Done()
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
		if n := c.dropped.Load(); n > 0 && h.log != nil {
			h.log.Printf("ws: watcher %d dropped %d frames", id, n)
		}
	}
}

func (h *Hub) join() (uint64, *client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, false
	}
	id := h.nextID.Add(1)
	c := &client{out: make(chan []byte, 256)}
	if b, err := json.Marshal(h.hello); err == nil {
		c.out <- b
	}
	h.clients[id] = c
	return id, c, true
}

func (h *Hub) leave(id uint64) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Broadcast queues m for every watcher without blocking.
func (h *Hub) Broadcast(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		if h.log != nil {
			h.log.Printf("ws: marshal %s: %v", m.Type, err)
		}
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, c := range h.clients {
		select {
		case c.out <- b:
		default:
			c.dropped.Add(1)
		}
	}
}

func (h *Hub) PublishProgress(runID string, chunk int, p search.Progress) {
	h.Broadcast(Message{Type: TypeProgress, RunID: runID, Chunk: chunk, Progress: &p})
}

func (h *Hub) PublishChunk(runID string, s planner.ChunkStats) {
	h.Broadcast(Message{Type: TypeChunk, RunID: runID, Chunk: s.Index, Stats: &s})
}

func (h *Hub) PublishDone(plan *planner.Plan) {
	h.Broadcast(Message{Type: TypeDone, RunID: plan.RunID, Chunk: len(plan.Chunks), Actions: len(plan.Actions), Cost: plan.Cost})
}

func (h *Hub) PublishFailure(runID string, chunk int, err error) {
	h.Broadcast(Message{Type: TypeFailed, RunID: runID, Chunk: chunk, Error: err.Error()})
}

// Close disconnects every watcher; queued frames are still written first.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.out)
		delete(h.clients, id)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if hst, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = hst
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
