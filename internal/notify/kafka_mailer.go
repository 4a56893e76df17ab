package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/FACorreiaa/go-user-accounts/config"
)

const EventEmailRequested = "email.requested"

// Event is the envelope published for the notification service.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
	Data   Email     `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMailer publishes email requests; rendering and delivery happen
// in the notification service.
type KafkaMailer struct {
	writer messageWriter
	source string
	logger *slog.Logger
	now    func() time.Time
}

func NewKafkaMailer(cfg config.KafkaConfig, source string, logger *slog.Logger) *KafkaMailer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.NotificationTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaMailer(w, source, logger)
}

func newKafkaMailer(w messageWriter, source string, logger *slog.Logger) *KafkaMailer {
	if source == "" {
		source = "user-accounts"
	}
	return &KafkaMailer{
		writer: w,
		source: source,
		logger: logger.With(slog.String("component", "KafkaMailer")),
		now:    time.Now,
	}
}

func (m *KafkaMailer) Send(ctx context.Context, email Email) error {
	event := Event{
		ID:     uuid.NewString(),
		Type:   EventEmailRequested,
		Source: m.source,
		Time:   m.now().UTC(),
		Data:   email,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error encoding email event: %w", err)
	}

	// Keyed by recipient so one user's emails stay ordered.
	msg := kafka.Message{
		Key:   []byte(email.To),
		Value: payload,
		Time:  event.Time,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventEmailRequested)},
		},
	}
	if err = m.writer.WriteMessages(ctx, msg); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish email event", slog.String("template", email.Template), slog.Any("error", err))
		return fmt.Errorf("error publishing email event: %w", err)
	}
	m.logger.DebugContext(ctx, "Email event published", slog.String("event_id", event.ID), slog.String("template", email.Template))
	return nil
}

func (m *KafkaMailer) Close() error {
	return m.writer.Close()
}
