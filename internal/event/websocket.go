package event

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	clientQueueSize = 256
	writeTimeout    = 5 * time.Second
)

// Hub broadcasts payloads to every connected websocket front end.
// A client that falls a full queue behind is disconnected rather than
// skipped, so connected clients never see gaps in the segment stream.
type Hub struct {
	log            *slog.Logger
	originPatterns []string

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan Payload
	once sync.Once
	done chan struct{}
}

func (c *wsClient) kick() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a hub. originPatterns are passed to websocket.Accept; an
// empty list only admits same-origin connections.
func NewHub(log *slog.Logger, originPatterns ...string) *Hub {
	return &Hub{
		log:            log,
		originPatterns: originPatterns,
		clients:        make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams payloads until the client
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	c := &wsClient{
		conn: conn,
		send: make(chan Payload, clientQueueSize),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(c)

	h.log.Debug("websocket client connected", slog.String("remote", r.RemoteAddr))

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case p := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, p)
			cancel()
			if err != nil {
				h.log.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Clients returns the number of connected front ends.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Emit queues p for every connected client. Having no clients is not an
// error; a closed hub is.
func (h *Hub) Emit(_ context.Context, p Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrUnavailable
	}
	for c := range h.clients {
		select {
		case c.send <- p:
		default:
			h.log.Warn("dropping slow websocket client")
			delete(h.clients, c)
			c.kick()
		}
	}
	return nil
}

// Close disconnects every client and rejects further payloads. The close
// handshakes run after the hub is unlocked, so Emit never waits on them.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	clear(h.clients)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	wg.Wait()
}
