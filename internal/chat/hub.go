package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/harborchat/harbor/internal/domain"
	"github.com/harborchat/harbor/internal/metrics"
)

// MessageStore is the durable persistence collaborator for routed messages.
type MessageStore interface {
	Create(sender, recipient, text, attachmentRef string) (domain.Message, error)
}

// BlobStore is the write-once sink for decoded attachment payloads.
type BlobStore interface {
	NewName(original string, data []byte) string
	WriteBlob(name string, data []byte) error
}

// Config holds the engine tunables.
type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendBufferSize int
	MaxMessageSize int64
	RateLimit      RateLimitConfig
}

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Hub owns the live set of connections. It handles registration,
// unregistration, presence broadcasting, and message fan-out. All mutation
// of the client set is synchronized so that concurrent connection-event
// handlers never corrupt an in-progress broadcast snapshot.
type Hub struct {
	log      zerolog.Logger
	cfg      Config
	messages MessageStore
	blobs    BlobStore
	validate *validator.Validate

	mutex   sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub ready to manage connections. Call Run in its own
// goroutine before registering clients.
func NewHub(log zerolog.Logger, cfg Config, messages MessageStore, blobs BlobStore) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		cfg:        cfg,
		messages:   messages,
		blobs:      blobs,
		validate:   validator.New(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a new connection to the hub's event loop. It reports false
// when the hub is shutting down and the connection was not accepted; the
// caller still owns the transport in that case.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a connection. Safe to call more than once for the same
// client; only the first call has any effect.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Run is the hub's main event loop. It runs until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("nil client registration skipped")
				continue
			}
			h.add(client)

		case client := <-h.unregister:
			h.drop(client)
		}
	}
}

// add puts the client in the live set, starts its pumps, and announces the
// new roster.
func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	count := len(h.clients)
	h.mutex.Unlock()

	metrics.ConnectionsActive.Set(float64(count))
	h.log.Info().Str("addr", client.addr).Int("clients", count).Msg("client registered")

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	h.BroadcastPresence()
}

// drop removes the client from the live set and announces the new roster.
// It reports whether the client was still registered, which makes repeated
// unregistration from the close handler and the death timer harmless.
func (h *Hub) drop(client *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	client.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)

	metrics.ConnectionsActive.Set(float64(count))
	h.log.Info().Str("addr", client.addr).Int("clients", count).Msg("client unregistered")

	h.BroadcastPresence()
	return true
}

// snapshot returns a copy of the live set so iteration never holds the lock
// across send operations.
func (h *Hub) snapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// FindByIdentity returns every live connection resolved to the given user.
func (h *Hub) FindByIdentity(userID string) []*Client {
	return lo.Filter(h.snapshot(), func(c *Client, _ int) bool {
		identity := c.Identity()
		return identity != nil && identity.ID == userID
	})
}

// Roster derives the current online list. A user with several open
// connections appears once; anonymous connections are excluded.
func (h *Hub) Roster() []domain.RosterEntry {
	entries := lo.FilterMap(h.snapshot(), func(c *Client, _ int) (domain.RosterEntry, bool) {
		identity := c.Identity()
		if identity == nil {
			return domain.RosterEntry{}, false
		}
		return domain.RosterEntry{UserID: identity.ID, Username: identity.DisplayName}, true
	})
	return lo.UniqBy(entries, func(entry domain.RosterEntry) string { return entry.UserID })
}

// BroadcastPresence pushes the current roster to every connection,
// anonymous ones included. Sends are fire-and-forget: a failure toward one
// peer never blocks delivery to the others.
func (h *Hub) BroadcastPresence() {
	payload, err := json.Marshal(PresenceEvent{Online: h.Roster()})
	if err != nil {
		h.log.Error().Err(err).Msg("presence event marshal failed")
		return
	}

	for _, client := range h.snapshot() {
		if !h.safeSend(client, payload) {
			h.log.Debug().Str("addr", client.addr).Msg("presence send skipped")
		}
	}
	metrics.PresenceBroadcasts.Inc()
}

// safeSend queues a payload for one client. It reports false when the
// client is gone or its buffer is full; the caller decides whether that
// matters.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// closeAllClients force-closes every transport during shutdown.
func (h *Hub) closeAllClients() {
	clients := h.snapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Str("addr", client.addr).Msg("closing client connection")
			}
		}
	}
	h.log.Info().Int("clients", len(clients)).Msg("closed all client connections")
}

// Shutdown stops the event loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
