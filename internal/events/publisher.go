package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventTypeCheckoutCompleted = "checkout.completed"

// CheckoutCompleted is the payload of a checkout.completed message.
type CheckoutCompleted struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	SessionID   string    `json:"session_id"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	ItemCount   int       `json:"item_count"`
	PayerEmail  string    `json:"payer_email,omitempty"`
	PayerID     string    `json:"payer_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewCheckoutCompleted(rec *domain.OrderRecord) CheckoutCompleted {
	return CheckoutCompleted{
		EventID:     uuid.NewString(),
		OrderID:     rec.OrderID,
		SessionID:   rec.SessionID,
		Amount:      rec.Amount.StringFixed(2),
		Currency:    rec.Currency,
		ItemCount:   rec.ItemCount,
		PayerEmail:  rec.PayerEmail,
		PayerID:     rec.PayerID,
		CompletedAt: rec.UpdatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes checkout events to a Kafka topic. Messages are keyed
// by order id so events of one order stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(topic string, logger *zap.Logger, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		ErrorLogger:            zap.NewStdLog(logger.With(zap.String("kafka_component", "writer"))),
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishCheckoutCompleted(ctx context.Context, rec *domain.OrderRecord) error {
	payload, err := json.Marshal(NewCheckoutCompleted(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal checkout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeCheckoutCompleted)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write checkout event: %w", err)
	}

	p.logger.Debug("checkout event published", zap.String("order_id", rec.OrderID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no brokers are configured. Events are logged
// and reported as delivered.
type NoopPublisher struct {
	logger *zap.Logger
}

func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) PublishCheckoutCompleted(_ context.Context, rec *domain.OrderRecord) error {
	p.logger.Info("checkout completed",
		zap.String("order_id", rec.OrderID),
		zap.String("amount", rec.Amount.StringFixed(2)))
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}
