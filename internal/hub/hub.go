// Package hub streams provisioning events to browsers and CLIs over
// Server-Sent Events.
//
// Each message carries an event name, a sequence ID and a JSON payload.
// The hub keeps a short backlog so a client reconnecting with
// Last-Event-ID receives what it missed.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultBacklog   = 64
	defaultKeepalive = 30 * time.Second
	clientBuffer     = 64
)

// Message is one encoded event
type Message struct {
	ID    uint64
	Event string
	Data  []byte
}

// frame renders the message in SSE wire format
func (m Message) frame() []byte {
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", m.ID, m.Event, m.Data))
}

type client struct {
	remote string
	events chan Message
}

// Hub fans published events out to connected SSE clients
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	backlog   []Message
	maxLog    int
	seq       uint64
	keepalive time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new Hub
func New() *Hub {
	return &Hub{
		clients:   make(map[*client]struct{}),
		maxLog:    defaultBacklog,
		keepalive: defaultKeepalive,
		done:      make(chan struct{}),
	}
}

// WithKeepalive sets the interval between keepalive comments
func (h *Hub) WithKeepalive(d time.Duration) *Hub {
	h.keepalive = d
	return h
}

// Publish encodes data and sends it to every client under the event name.
// Slow clients miss the message rather than block the publisher.
func (h *Hub) Publish(event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("Hub: failed to marshal %s event: %v", event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	msg := Message{ID: h.seq, Event: event, Data: payload}
	h.backlog = append(h.backlog, msg)
	if len(h.backlog) > h.maxLog {
		h.backlog = h.backlog[len(h.backlog)-h.maxLog:]
	}

	for c := range h.clients {
		select {
		case c.events <- msg:
		default:
			log.Printf("Hub: client %s is slow, dropping event %d", c.remote, msg.ID)
		}
	}
}

// Close ends every open stream. Clients connecting afterwards get 503.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// attach registers a client and returns the backlog after lastID
func (h *Hub) attach(c *client, lastID uint64) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	var missed []Message
	for _, m := range h.backlog {
		if m.ID > lastID {
			missed = append(missed, m)
		}
	}
	log.Printf("Hub: client %s connected (total: %d)", c.remote, len(h.clients))
	return missed
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	log.Printf("Hub: client %s disconnected (total: %d)", c.remote, len(h.clients))
}

// ServeHTTP handles SSE connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	select {
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	var lastID uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastID, _ = strconv.ParseUint(v, 10, 64)
	}

	c := &client{remote: r.RemoteAddr, events: make(chan Message, clientBuffer)}
	missed := h.attach(c, lastID)
	defer h.detach(c)

	fmt.Fprint(w, ": connected\n\n")
	for _, m := range missed {
		if _, err := w.Write(m.frame()); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.events:
			if _, err := w.Write(msg.frame()); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return

		case <-h.done:
			return
		}
	}
}
