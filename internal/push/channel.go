package push

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"game-sync-client/internal/logger"
)

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
	stateClosing
)

// Channel maintains the persistent websocket to the remote service and fans
// parsed change notifications out to subscribers. Unexpected disconnects
// reconnect with linear backoff (attempt x base delay) up to a cap; after the
// cap the channel stays down until Connect is called again.
type Channel struct {
	wsURL       string
	baseDelay   time.Duration
	maxAttempts int

	mu          sync.Mutex
	conn        *websocket.Conn
	st          state
	manualClose bool
	attempts    int
	subscribers map[chan *Message]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChannel derives the websocket endpoint from the remote base address.
func NewChannel(baseURL string, baseDelay time.Duration, maxAttempts int) *Channel {
	wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		wsURL:       wsURL,
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
		subscribers: make(map[chan *Message]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe returns a channel of parsed push messages and a cancel func.
// Delivery is multicast; a detached subscriber does not affect the others.
func (c *Channel) Subscribe() (<-chan *Message, func()) {
	ch := make(chan *Message, 16)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.subscribers, ch)
		c.mu.Unlock()
	}
	return ch, cancel
}

// Connect opens the websocket. A no-op when already connected or connecting.
// Calling it resets the manual-close flag and the backoff counter.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.st == stateConnected || c.st == stateConnecting {
		c.mu.Unlock()
		logger.Log.Debug("Push channel already connected")
		return
	}
	c.st = stateConnecting
	c.manualClose = false
	c.attempts = 0
	c.mu.Unlock()

	c.dial()
}

func (c *Channel) dial() {
	logger.Log.Info("Connecting push channel", zap.String("url", c.wsURL))

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(c.ctx, c.wsURL, nil)
	if err != nil {
		logger.Log.Warn("Push channel dial failed", zap.Error(err))
		c.mu.Lock()
		c.st = stateDisconnected
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.st = stateConnected
	c.attempts = 0
	c.mu.Unlock()

	logger.Log.Info("Push channel connected")

	c.wg.Add(1)
	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			manual := c.manualClose
			if c.conn == conn {
				c.conn = nil
				c.st = stateDisconnected
			}
			c.mu.Unlock()

			if manual {
				logger.Log.Debug("Push channel closed")
				return
			}

			logger.Log.Warn("Push channel lost", zap.Error(err))
			c.scheduleReconnect()
			return
		}

		msg, err := parseMessage(frame)
		if err != nil {
			// Bad frames are dropped; the stream keeps going.
			logger.Log.Warn("Dropping push frame", zap.Error(err), zap.ByteString("frame", frame))
			continue
		}

		c.broadcast(msg)
	}
}

func (c *Channel) broadcast(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger.Log.Debug("Push message received", zap.String("message", msg.String()))

	for ch := range c.subscribers {
		select {
		case ch <- msg:
		default:
			logger.Log.Warn("Push subscriber buffer full, dropping message",
				zap.String("message", msg.String()))
		}
	}
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if attempt > c.maxAttempts {
		logger.Log.Error("Push channel reconnect attempts exhausted",
			zap.Int("attempts", c.maxAttempts))
		return
	}

	delay := time.Duration(attempt) * c.baseDelay
	logger.Log.Info("Scheduling push channel reconnect",
		zap.Duration("delay", delay),
		zap.Int("attempt", attempt),
		zap.Int("maxAttempts", c.maxAttempts),
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return
		}

		c.mu.Lock()
		if c.manualClose || c.st != stateDisconnected {
			c.mu.Unlock()
			return
		}
		c.st = stateConnecting
		c.mu.Unlock()

		c.dial()
	}()
}

// Disconnect closes the transport and suppresses auto-reconnect until the
// next explicit Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.st = stateClosing
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second))
		conn.Close()
	}

	c.mu.Lock()
	c.st = stateDisconnected
	c.mu.Unlock()

	logger.Log.Info("Push channel disconnected")
}

// IsConnected reports whether the transport is currently open.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st == stateConnected
}

// Close tears the channel down for process shutdown.
func (c *Channel) Close() {
	c.Disconnect()
	c.cancel()
	c.wg.Wait()
}
