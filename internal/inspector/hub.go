package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tjfontaine/assetd/internal/core/domain"
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("inspector hub closed")

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// localOrigins admits browser tooling served from the local machine.
var localOrigins = []string{"localhost:*", "127.0.0.1:*", "[::1]:*"}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans asset events out to connected websocket clients. A client that
// cannot keep up is disconnected rather than slowing the others down.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub starts a hub. Close stops it and disconnects every client.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		logger:     logger,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("inspector client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.logger.Warn("dropping slow inspector client")
				h.drop(c)
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// drop removes c and closes its send channel, which ends its writer.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Debug("inspector client disconnected", slog.Int("clients", len(h.clients)))
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the hub is closed. Incoming messages are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: localOrigins,
	})
	if err != nil {
		h.logger.Warn("inspector websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
	}()

	ctx := conn.CloseRead(h.ctx)
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			if h.ctx.Err() != nil {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			return
		}
	}
}

// Publish queues event for every connected client.
func (h *Hub) Publish(ctx context.Context, event *domain.AssetEvent) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and stops the hub.
func (h *Hub) Close() error {
	h.cancel()
	<-h.done
	return nil
}
