// Package notify hands outgoing emails to whatever delivers them.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/go-user-accounts/config"
)

// Templates understood by the notification service.
const (
	TemplatePasswordReset   = "password_reset"
	TemplateWorkspaceInvite = "workspace_invite"
)

type Email struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer builds the mailer selected by mail.driver. The returned
// close func releases its resources.
func NewMailer(cfg config.Config, logger *slog.Logger) (Mailer, func() error, error) {
	switch cfg.Mail.Driver {
	case "", "log":
		return NewLogMailer(logger), func() error { return nil }, nil
	case "kafka":
		m := NewKafkaMailer(cfg.Kafka, cfg.App.Name, logger)
		return m, m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With(slog.String("component", "LogMailer"))}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	attrs := []any{
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.String("template", email.Template),
	}
	for k, v := range email.Data {
		attrs = append(attrs, slog.String("data."+k, v))
	}
	m.logger.InfoContext(ctx, "Email queued", attrs...)
	return nil
}
