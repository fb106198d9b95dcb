// Package poller clears session carts once their orders are placed.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic   = "checkout-outbox"
	DefaultGroupID = "cartstore-consumer"
)

var errMissingSessionID = errors.New("missing or invalid session_id")

// Clearer empties the cart of a session.
type Clearer interface {
	ClearSession(ctx context.Context, sessionID string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type orderPlaced struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

const readBackoff = time.Second

type Poller struct {
	reader  messageReader
	carts   Clearer
	logger  *zap.Logger
	backoff time.Duration
}

func NewPoller(carts Clearer, logger *zap.Logger, topic string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  DefaultGroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{reader: reader, carts: carts, logger: logger, backoff: readBackoff}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.readAndClearCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) readAndClearCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("error reading message", zap.Error(err))
			p.wait(ctx)
		}
		return
	}

	event, err := parse(m.Value)
	if err != nil {
		p.logger.Warn("skipping message", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}

	if err := p.carts.ClearSession(ctx, event.SessionID); err != nil {
		p.logger.Error("failed to clear cart", zap.String("session_id", event.SessionID), zap.Error(err))
		return
	}
	p.logger.Info("cart cleared after order", zap.String("session_id", event.SessionID), zap.String("user_id", event.UserID))
}

// wait pauses after a failed read so a broken broker is not polled in a tight loop.
func (p *Poller) wait(ctx context.Context) {
	if p.backoff <= 0 {
		return
	}
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func parse(value []byte) (orderPlaced, error) {
	var event orderPlaced
	if err := json.Unmarshal(value, &event); err != nil {
		return orderPlaced{}, fmt.Errorf("error parsing message: %w", err)
	}
	if event.SessionID == "" {
		return orderPlaced{}, errMissingSessionID
	}
	return event, nil
}
