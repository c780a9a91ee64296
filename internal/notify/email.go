package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

// EmailConfig holds SMTP connection details.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	// Location renders slot times; nil means UTC.
	Location *time.Location
}

// RecipientFunc resolves the address for a user. ok=false skips the user.
type RecipientFunc func(userID string) (addr string, ok bool)

// UserIDAsAddress treats user ids that look like addresses as the recipient.
func UserIDAsAddress(userID string) (string, bool) {
	return userID, strings.Contains(userID, "@")
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends a schedule summary via SMTP.
type EmailNotifier struct {
	cfg       EmailConfig
	recipient RecipientFunc
	send      sendFunc
}

// NewEmailNotifier creates an EmailNotifier. A nil recipient uses UserIDAsAddress.
func NewEmailNotifier(cfg EmailConfig, recipient RecipientFunc) *EmailNotifier {
	if recipient == nil {
		recipient = UserIDAsAddress
	}
	return &EmailNotifier{cfg: cfg, recipient: recipient, send: smtp.SendMail}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Notify(ctx context.Context, ev kafka.TasksScheduledEvent) error {
	ctx, span := telemetry.Tracer("notifier").Start(ctx, "notify.email")
	defer span.End()

	to, ok := n.recipient(ev.UserID)
	if !ok {
		span.SetAttributes(attribute.Bool("email.skipped", true))
		return nil
	}
	span.SetAttributes(attribute.String("email.to", to), attribute.Int("tasks", len(ev.Tasks)))

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	subject := fmt.Sprintf("Your schedule: %d task(s) placed", len(ev.Tasks))
	msg := buildMIME(n.cfg.From, to, subject, Summary(ev, n.cfg.Location))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	// net/smtp has no context support; run it aside so cancellation still returns.
	done := make(chan error, 1)
	go func() { done <- n.send(addr, auth, n.cfg.From, []string{to}, msg) }()

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "smtp send failed")
			return fmt.Errorf("smtp send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("email send cancelled: %w", ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return err
	}
}

func buildMIME(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, to, subject, strings.ReplaceAll(body, "\n", "\r\n"),
	))
}
