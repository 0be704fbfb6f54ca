// Package eventbus is a topic publish/subscribe client over a RabbitMQ topic
// exchange. Delivery is at-least-once; handlers must be idempotent.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const resubscribeDelay = time.Second

// Handler applies one delivered event. A returned error or a panic is logged
// and the message is still acknowledged.
type Handler func(ctx context.Context, event *domain.Event) error

// Result is the outcome of one delivery. Err is nil on success and wraps
// domain.ErrPoisonEvent otherwise.
type Result struct {
	Topic    string
	EventID  string
	Err      error
	Duration time.Duration
}

type Config struct {
	URL            string
	Exchange       string
	HandlerTimeout time.Duration
	// OnResult, when set, observes every delivery outcome.
	OnResult func(Result)
}

type Client struct {
	conn           *Connection
	handlerTimeout time.Duration
	onResult       func(Result)
	logger         *zap.Logger
	metrics        metrics.Recorder

	publishMu sync.Mutex

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger, rec metrics.Recorder) *Client {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	logger = logger.Named("eventbus")
	return &Client{
		conn:           NewConnection(cfg.URL, cfg.Exchange, logger),
		handlerTimeout: cfg.HandlerTimeout,
		onResult:       cfg.OnResult,
		logger:         logger,
		metrics:        rec,
		done:           make(chan struct{}),
	}
}

// Connect establishes the broker connection eagerly. Publish and Subscribe
// connect on demand, so calling this is optional.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.conn.EnsureConnected(ctx)
	return err
}

// Publish wraps payload in a versioned envelope and sends it under topic.
// A failed attempt triggers exactly one reconnect-and-retry; if that fails
// too the error is returned wrapping domain.ErrTransientInfra. Publishes from
// one Client reach the exchange in call order.
func (c *Client) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	event := domain.Event{
		Version:    domain.EventVersion,
		ID:         uuid.NewString(),
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", topic, err)
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	// A failed dial is the one establish attempt. Only a publish on a
	// channel that was live earns a reconnect.
	ch, err := c.conn.EnsureConnected(ctx)
	if err == nil {
		err = c.publishOn(ctx, ch, topic, event.ID, body)
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("publish failed, reconnecting once",
				zap.String("topic", topic), zap.Error(err))
			c.conn.Reset()
			err = c.publishOnce(ctx, topic, event.ID, body)
		}
	}
	if err != nil {
		c.metrics.EventPublishFailed(topic)
		c.logger.Error("event not published",
			zap.String("topic", topic), zap.String("event_id", event.ID), zap.Error(err))
		return fmt.Errorf("publish %s: %w: %w", topic, domain.ErrTransientInfra, err)
	}

	c.metrics.EventPublished(topic)
	c.logger.Debug("event published", zap.String("topic", topic), zap.String("event_id", event.ID))
	return nil
}

func (c *Client) publishOnce(ctx context.Context, topic, id string, body []byte) error {
	ch, err := c.conn.EnsureConnected(ctx)
	if err != nil {
		return err
	}
	return c.publishOn(ctx, ch, topic, id, body)
}

func (c *Client) publishOn(ctx context.Context, ch *amqp.Channel, topic, id string, body []byte) error {
	return ch.PublishWithContext(ctx, c.conn.Exchange(), topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Subscribe binds an exclusive, anonymous queue to topic and feeds each
// delivery to handler, one at a time, until ctx is cancelled or the client
// is closed. If the broker drops the channel the queue is redeclared.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) error {
	deliveries, err := c.consume(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.logger.Info("subscribed", zap.String("topic", topic))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeLoop(ctx, topic, handler, deliveries)
	}()
	return nil
}

func (c *Client) consume(ctx context.Context, topic string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, topic, c.conn.Exchange(), false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Client) consumeLoop(ctx context.Context, topic string, handler Handler, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				deliveries = c.resubscribe(ctx, topic)
				if deliveries == nil {
					return
				}
				continue
			}

			res := c.dispatch(ctx, topic, handler, d.Body)
			if err := d.Ack(false); err != nil {
				c.logger.Warn("ack failed", zap.String("topic", topic), zap.Error(err))
			}
			c.report(res)
		}
	}
}

// resubscribe retries until a fresh queue is consuming or the subscription
// is over. Events published while no queue was bound are not seen.
func (c *Client) resubscribe(ctx context.Context, topic string) <-chan amqp.Delivery {
	for {
		c.logger.Warn("subscription channel closed, resubscribing", zap.String("topic", topic))
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-time.After(resubscribeDelay):
		}

		deliveries, err := c.consume(ctx, topic)
		if err == nil {
			c.logger.Info("resubscribed", zap.String("topic", topic))
			return deliveries
		}
		c.logger.Error("resubscribe failed", zap.String("topic", topic), zap.Error(err))
	}
}

// dispatch runs handler under the per-invocation timeout. A handler that
// ignores its context is abandoned once the timeout fires so the queue keeps
// moving.
func (c *Client) dispatch(ctx context.Context, topic string, handler Handler, body []byte) Result {
	start := time.Now()
	res := Result{Topic: topic}

	var event domain.Event
	if err := json.Unmarshal(body, &event); err != nil {
		res.Err = fmt.Errorf("%w: decode envelope: %w", domain.ErrPoisonEvent, err)
		res.Duration = time.Since(start)
		return res
	}
	res.EventID = event.ID
	if event.Version > domain.EventVersion {
		res.Err = fmt.Errorf("%w: unsupported event version %d", domain.ErrPoisonEvent, event.Version)
		res.Duration = time.Since(start)
		return res
	}

	hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- invoke(hctx, handler, &event)
	}()

	select {
	case err := <-errc:
		res.Err = err
	case <-hctx.Done():
		res.Err = fmt.Errorf("%w: %w", domain.ErrPoisonEvent, hctx.Err())
	}
	res.Duration = time.Since(start)
	return res
}

func invoke(ctx context.Context, handler Handler, event *domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrPoisonEvent, r)
		}
	}()
	if err := handler(ctx, event); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPoisonEvent, err)
	}
	return nil
}

func (c *Client) report(res Result) {
	if res.Err != nil {
		c.metrics.EventHandled(res.Topic, "failed")
		c.logger.Error("event handler failed; message acknowledged",
			zap.String("topic", res.Topic),
			zap.String("event_id", res.EventID),
			zap.Duration("duration", res.Duration),
			zap.Error(res.Err))
	} else {
		c.metrics.EventHandled(res.Topic, "ok")
		c.logger.Debug("event handled",
			zap.String("topic", res.Topic),
			zap.String("event_id", res.EventID),
			zap.Duration("duration", res.Duration))
	}
	if c.onResult != nil {
		c.onResult(res)
	}
}

// Close stops all subscriptions and closes the connection. It waits for
// in-progress handlers to finish.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	err := c.conn.Close()
	c.wg.Wait()
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
