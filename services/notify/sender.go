package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/config"
	"github.com/upb/imu-filing/internal/redact"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// NewSender returns a SendGrid sender when an API key is configured, and a
// log-only sender otherwise
func NewSender(cfg config.EmailConfig, logger *zap.Logger) Sender {
	if cfg.SendgridAPIKey == "" {
		logger.Warn("SENDGRID_API_KEY not set, emails will only be logged")
		return NewLogSender(cfg.SubjectPrefix, logger)
	}
	return NewSendgridSender(cfg.SendgridAPIKey, cfg.FromName, cfg.FromAddress, cfg.SubjectPrefix, logger)
}

// SendgridSender sends through the SendGrid v3 mail API
type SendgridSender struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	logger     *zap.Logger
}

// NewSendgridSender creates a SendGrid sender
func NewSendgridSender(key, fromName, fromAddress, subjPrefix string, logger *zap.Logger) *SendgridSender {
	return &SendgridSender{
		key:        key,
		host:       sendgridHost,
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: subjPrefix,
		logger:     logger,
	}
}

// Send implements Sender
func (s *SendgridSender) Send(ctx context.Context, msg *Message) error {
	if !msg.HasRecipients() {
		return nil
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		s.logger.Error("sendgrid rejected email",
			zap.Int("status_code", res.StatusCode),
			zap.String("body", res.Body))
		return fmt.Errorf("sendgrid returned status %d", res.StatusCode)
	}

	s.logger.Info("email sent",
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(msg.To)))
	return nil
}

func (s *SendgridSender) prepare(msg *Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.TextContent),
		sgmail.NewContent("text/html", msg.HTMLContent),
	)
	return m
}

// LogSender writes messages to the log instead of sending them
type LogSender struct {
	subjPrefix string
	logger     *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogSender creates a log-only sender
func NewLogSender(subjPrefix string, logger *zap.Logger) *LogSender {
	return &LogSender{subjPrefix: subjPrefix, logger: logger}
}

// Send implements Sender
func (s *LogSender) Send(_ context.Context, msg *Message) error {
	if !msg.HasRecipients() {
		return nil
	}
	s.logger.Info("email (not sent)",
		zap.String("to", maskedAddresses(msg.To)),
		zap.String("subject", s.subjPrefix+msg.Subject),
		zap.String("body", redact.Text(msg.TextContent)))

	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()
	return nil
}

// Sent returns the messages logged so far
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func maskedAddresses(addrs []mail.Address) string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, redact.Email(a.Address))
	}
	return strings.Join(out, ", ")
}
