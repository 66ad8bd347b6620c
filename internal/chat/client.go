package chat

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harborchat/harbor/internal/domain"
	"github.com/harborchat/harbor/internal/metrics"
)

const writeTimeout = 10 * time.Second

// Client is one live bidirectional connection. The identity is resolved at
// upgrade time and immutable afterwards; a nil identity means the connection
// is anonymous and receives presence frames but no routed messages.
//
// Liveness is a two-state machine per connection: every ping sent by the
// write pump arms a death timer and marks the connection suspect; the
// matching pong disarms it. A timer that fires first declares the
// connection dead and force-closes the transport.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	addr string
	log  zerolog.Logger

	identity *domain.Identity

	// closed is guarded by the hub mutex together with set membership.
	closed bool

	limiter *rateLimiter

	// Heartbeat state. The timer handle is nulled under mu on every exit
	// path; the generation counter keeps a late-firing timer from acting on
	// a connection that already ponged or tore down.
	mu         sync.Mutex
	alive      bool
	generation uint64
	deathTimer *time.Timer
}

// NewClient wraps an upgraded connection. identity may be nil.
func NewClient(hub *Hub, conn *websocket.Conn, addr string, identity *domain.Identity) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}

	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.cfg.SendBufferSize),
		addr:     addr,
		log:      hub.log.With().Str("addr", addr).Logger(),
		identity: identity,
		alive:    true,
		limiter:  newRateLimiter(hub.cfg.RateLimit),
	}
}

// Identity returns the resolved identity, or nil for anonymous connections.
func (c *Client) Identity() *domain.Identity {
	return c.identity
}

// readPump dispatches inbound frames sequentially, which preserves
// per-sender delivery order. It exits on the first transport error, whether
// from a clean close or a force-close by the death timer.
func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetPongHandler(func(string) error {
		c.pongReceived()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.log.Warn().Msg("rate limit exceeded; discarding message")
			continue
		}

		c.hub.Route(c, raw)
	}
}

// writePump drains the send queue and drives the heartbeat ping interval.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("closing connection in write pump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.log.Warn().Err(err).Msg("setting write deadline")
				return
			}
			if !ok {
				// The hub closed the channel on unregistration.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("writing close message")
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn().Err(err).Msg("writing message")
				}
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// sendPing arms the death timer and then emits a protocol-level ping. The
// arm must precede the write: the matching pong can be read and handled on
// the read pump before WriteMessage returns, and a pong handled before the
// arm would have no timer to disarm.
func (c *Client) sendPing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.log.Warn().Err(err).Msg("setting ping write deadline")
		return false
	}

	c.armDeathTimer()
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.disarmDeathTimer()
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("writing ping")
		}
		return false
	}
	return true
}

// armDeathTimer transitions the connection to suspected-dead until the
// matching pong arrives.
func (c *Client) armDeathTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alive = false
	if c.deathTimer != nil {
		c.deathTimer.Stop()
	}
	generation := c.generation
	c.deathTimer = time.AfterFunc(c.hub.cfg.PongTimeout, func() {
		c.declareDead(generation)
	})
}

// disarmDeathTimer cancels a pending death timer without touching the alive
// flag. Used when the ping never made it onto the wire.
func (c *Client) disarmDeathTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.deathTimer != nil {
		c.deathTimer.Stop()
		c.deathTimer = nil
	}
}

// pongReceived transitions back to alive and disarms the death timer.
func (c *Client) pongReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alive = true
	c.generation++
	if c.deathTimer != nil {
		c.deathTimer.Stop()
		c.deathTimer = nil
	}
}

// declareDead runs when a death timer fires before its pong. Closing the
// transport unblocks the read pump, whose teardown performs the actual
// (idempotent) unregistration and roster re-broadcast.
func (c *Client) declareDead(generation uint64) {
	c.mu.Lock()
	if generation != c.generation || c.deathTimer == nil {
		c.mu.Unlock()
		return
	}
	c.deathTimer = nil
	c.mu.Unlock()

	metrics.LivenessEvictions.Inc()
	c.log.Info().Msg("heartbeat timed out; terminating connection")

	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// teardown cancels the heartbeat state and unregisters the connection. Every
// read pump exit path funnels through here exactly once.
func (c *Client) teardown() {
	c.mu.Lock()
	c.generation++
	if c.deathTimer != nil {
		c.deathTimer.Stop()
		c.deathTimer = nil
	}
	c.mu.Unlock()

	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("closing connection in read pump")
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.hub.cfg.MaxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
