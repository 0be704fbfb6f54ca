package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const exchangeKind = "topic"

var errConnectionClosed = errors.New("eventbus: connection closed")

// Connection owns one AMQP connection and the channel used for publishing.
// It connects lazily; concurrent callers of EnsureConnected share a single
// in-flight dial.
type Connection struct {
	url         string
	exchange    string
	dialTimeout time.Duration
	logger      *zap.Logger
	dial        func(url string, cfg amqp.Config) (*amqp.Connection, error)

	group singleflight.Group

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewConnection(url, exchange string, logger *zap.Logger) *Connection {
	return &Connection{
		url:         url,
		exchange:    exchange,
		dialTimeout: 10 * time.Second,
		logger:      logger,
		dial:        amqp.DialConfig,
	}
}

// EnsureConnected returns the publish channel, dialing and declaring the
// exchange first when there is no live channel.
func (c *Connection) EnsureConnected(ctx context.Context) (*amqp.Channel, error) {
	if ch, ok := c.current(); ok {
		return ch, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, shared := c.group.Do("connect", func() (any, error) {
		return c.connect()
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight broker connect")
	}
	return v.(*amqp.Channel), nil
}

// Channel opens a dedicated channel on the live connection, for consumers.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	if _, err := c.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, errConnectionClosed
	}
	return conn.Channel()
}

func (c *Connection) Exchange() string {
	return c.exchange
}

// Reset drops the current connection so the next EnsureConnected redials.
func (c *Connection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.teardownLocked()
}

func (c *Connection) current() (*amqp.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ch == nil || c.ch.IsClosed() || c.conn == nil || c.conn.IsClosed() {
		return nil, false
	}
	return c.ch, true
}

func (c *Connection) connect() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errConnectionClosed
	}
	if c.ch != nil && !c.ch.IsClosed() && c.conn != nil && !c.conn.IsClosed() {
		return c.ch, nil
	}
	c.teardownLocked()

	conn, err := c.dial(c.url, amqp.Config{
		Dial:      amqp.DefaultDial(c.dialTimeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Non-durable, matching the other services declaring the same exchange.
	if err := ch.ExchangeDeclare(c.exchange, exchangeKind, false, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", c.exchange, err)
	}

	c.conn, c.ch = conn, ch
	c.logger.Info("connected to broker", zap.String("exchange", c.exchange))
	return ch, nil
}

func (c *Connection) teardownLocked() error {
	var err error
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		if !c.conn.IsClosed() {
			err = c.conn.Close()
		}
		c.conn = nil
	}
	return err
}
