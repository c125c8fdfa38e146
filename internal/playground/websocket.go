package playground

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holla2040/loxr/internal/script/result"
	"github.com/holla2040/loxr/internal/script/runner"
	"nhooyr.io/websocket"
)

// WSEvent is the JSON envelope broadcast to WebSocket clients.
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EvalReply answers one chunk of source sent over a WebSocket.
type EvalReply struct {
	RunID       string              `json:"run_id,omitempty"`
	Output      string              `json:"output"`
	Diagnostics []result.Diagnostic `json:"diagnostics"`
	OK          bool                `json:"ok"`
	Vars        map[string]string   `json:"vars,omitempty"`
}

// Hub manages WebSocket sessions and broadcasts events to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*peer]bool
	nextID  atomic.Int64

	runTimeout time.Duration

	registerCh   chan *peer
	unregisterCh chan *peer
	broadcastCh  chan []byte
}

// peer is one WebSocket connection and the interactive session it drives.
type peer struct {
	conn    *websocket.Conn
	send    chan []byte
	session *runner.Session
}

// NewHub creates a hub whose sessions bound each evaluation by runTimeout.
// Zero means no limit.
func NewHub(runTimeout time.Duration) *Hub {
	return &Hub{
		clients:      make(map[*peer]bool),
		runTimeout:   runTimeout,
		registerCh:   make(chan *peer, 16),
		unregisterCh: make(chan *peer, 16),
		broadcastCh:  make(chan []byte, 256),
	}
}

// Run processes register, unregister, and broadcast events.
// Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.registerCh:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregisterCh:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()

		case data := <-h.broadcastCh:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// slow client, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends data to all connected clients.
// Safe to call from any goroutine.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcastCh <- data:
	default:
	}
}

// BroadcastEvent marshals a WSEvent and broadcasts it.
func (h *Hub) BroadcastEvent(eventType string, payload interface{}) {
	data, err := json.Marshal(WSEvent{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("websocket: failed to marshal event: %v", err)
		return
	}
	h.Broadcast(data)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and starts a session for it. Each
// text message is evaluated as Lox source in that session; ":vars" and
// ":reset" inspect and clear it.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("websocket: accept failed: %v", err)
		return
	}

	var opts []runner.Option
	if h.runTimeout > 0 {
		opts = append(opts, runner.WithTimeout(h.runTimeout))
	}
	c := &peer{
		conn:    conn,
		send:    make(chan []byte, 64),
		session: runner.NewSession(fmt.Sprintf("ws-%d", h.nextID.Add(1)), opts...),
	}

	h.registerCh <- c

	go h.writePump(r.Context(), c)
	h.readPump(r.Context(), c)
}

// writePump forwards broadcasts from the peer's send channel.
func (h *Hub) writePump(ctx context.Context, c *peer) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump evaluates each incoming message and writes the reply directly.
func (h *Hub) readPump(ctx context.Context, c *peer) {
	defer func() {
		h.unregisterCh <- c
	}()

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		reply, err := json.Marshal(h.eval(ctx, c.session, string(data)))
		if err != nil {
			log.Printf("websocket: failed to marshal reply: %v", err)
			continue
		}
		if err := write(ctx, c.conn, reply); err != nil {
			return
		}
	}
}

func (h *Hub) eval(ctx context.Context, s *runner.Session, input string) EvalReply {
	switch strings.TrimSpace(input) {
	case ":vars":
		return EvalReply{Diagnostics: []result.Diagnostic{}, OK: true, Vars: s.Vars()}
	case ":reset":
		s.Reset()
		return EvalReply{Diagnostics: []result.Diagnostic{}, OK: true}
	}

	report := s.Eval(ctx, input)
	diags := report.Diagnostics
	if diags == nil {
		diags = []result.Diagnostic{}
	}
	return EvalReply{RunID: report.RunID, Output: report.Output, Diagnostics: diags, OK: report.OK()}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, msg)
}
