package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_cart/cartstore/internal/domain"
)

const (
	DefaultTopic = "cart-checkout"
	EventType    = "cart.checkout_requested"
)

var ErrEmptyCart = errors.New("cart is empty")

// Handoff is what order creation receives when a shopper starts checkout.
type Handoff struct {
	SessionID string                  `json:"session_id"`
	UserID    string                  `json:"user_id,omitempty"`
	Snapshot  domain.CheckoutSnapshot `json:"snapshot"`
}

type Publisher interface {
	Publish(ctx context.Context, h Handoff) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

// Publish writes the handoff keyed by session id, so one session's checkouts stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, h Handoff) error {
	if len(h.Snapshot.Items) == 0 {
		return ErrEmptyCart
	}

	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal checkout handoff failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(h.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish checkout handoff failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

var ErrCheckoutDisabled = errors.New("checkout publishing is not configured")

func (NoopPublisher) Publish(context.Context, Handoff) error {
	return ErrCheckoutDisabled
}
