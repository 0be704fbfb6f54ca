// Package events wires service consumers to the event bus.
package events

import (
	"context"
	"fmt"
	"sort"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/eventbus"
	"go.uber.org/zap"
)

// Topics lists every topic a service may publish.
var Topics = []string{domain.TopicPostCreated, domain.TopicPostDeleted}

// Subscriber is the part of the bus client consumers need.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler eventbus.Handler) error
}

// Consumer is implemented by services that react to events.
type Consumer interface {
	Subscriptions() map[string]eventbus.Handler
}

// Register subscribes every handler of every consumer. Each handler gets its
// own queue, so two consumers of the same topic both see every event.
func Register(ctx context.Context, sub Subscriber, logger *zap.Logger, consumers ...Consumer) error {
	for _, consumer := range consumers {
		handlers := consumer.Subscriptions()

		topics := make([]string, 0, len(handlers))
		for topic := range handlers {
			topics = append(topics, topic)
		}
		sort.Strings(topics)

		for _, topic := range topics {
			if err := sub.Subscribe(ctx, topic, handlers[topic]); err != nil {
				return fmt.Errorf("subscribe %T to %s: %w", consumer, topic, err)
			}
			logger.Debug("consumer registered", zap.String("topic", topic), zap.String("consumer", fmt.Sprintf("%T", consumer)))
		}
	}
	return nil
}
