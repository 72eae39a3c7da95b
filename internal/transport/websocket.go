// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "hapsync/internal/log"
)

const (
	writeWait      = 2 * time.Second
	maxMessageSize = 64 << 10
	broadcastDepth = 256
)

// MessageHandler receives one inbound text message from a client. A non-nil
// reply is written back to that client only.
type MessageHandler func(data []byte) (reply any)

// HubOptions configures a Hub.
type HubOptions struct {
	Name string
	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts all.
	AllowedOrigins []string
	// OnMessage is called for every inbound message. Nil discards them.
	OnMessage MessageHandler
	// OnConnect is called after a client registers, with the new client count.
	OnConnect func(clients int)
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub is a websocket broadcaster. It is mounted on an existing router via
// Handler and fans every Send out to all connected clients as JSON.
type Hub struct {
	opts     HubOptions
	upgrader websocket.Upgrader
	logger   *applog.Logger

	clientsMu sync.Mutex
	clients   map[*client]struct{}

	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
	wg        sync.WaitGroup
}

// NewHub creates a Hub and starts its broadcast goroutine.
func NewHub(opts HubOptions) *Hub {
	if opts.Name == "" {
		opts.Name = "ws"
	}
	h := &Hub{
		opts:      opts,
		logger:    applog.With("component", "transport", "hub", opts.Name),
		clients:   make(map[*client]struct{}),
		broadcast: make(chan any, broadcastDepth),
		done:      make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	h.wg.Add(1)
	go h.handleBroadcasts()
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}

// Handler returns the HTTP handler that upgrades requests and serves one
// client until it disconnects.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.serveWS)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn}
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Infof("client connected from %s, total: %d", r.RemoteAddr, n)
	if h.opts.OnConnect != nil {
		h.opts.OnConnect(n)
	}

	defer h.remove(c)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugf("read error: %v", err)
			}
			return
		}
		if kind != websocket.TextMessage || h.opts.OnMessage == nil {
			continue
		}
		if reply := h.opts.OnMessage(data); reply != nil {
			if err := c.write(reply); err != nil {
				h.logger.Debugf("reply error: %v", err)
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.clientsMu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.clientsMu.Unlock()
	_ = c.conn.Close()
	if ok {
		h.logger.Infof("client disconnected, total: %d", n)
	}
}

func (h *Hub) handleBroadcasts() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case data := <-h.broadcast:
			h.clientsMu.Lock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				targets = append(targets, c)
			}
			h.clientsMu.Unlock()
			for _, c := range targets {
				if err := c.write(data); err != nil {
					h.logger.Debugf("error sending to client: %v", err)
					h.remove(c)
				}
			}
		}
	}
}

// Send queues data for broadcast. When the queue is full the message is
// dropped and counted.
func (h *Hub) Send(data any) error {
	if h.closed.Load() {
		return ErrClosed
	}
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Dropped reports how many broadcasts were discarded on a full queue.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects all clients and stops the broadcaster.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.done)
		h.wg.Wait()

		h.clientsMu.Lock()
		for c := range h.clients {
			_ = c.conn.Close()
		}
		h.clients = make(map[*client]struct{})
		h.clientsMu.Unlock()
		h.logger.Debugf("closed")
	})
	return nil
}

var _ Transport = (*Hub)(nil)
