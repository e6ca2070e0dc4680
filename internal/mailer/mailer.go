package mailer

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

type kind struct {
	template string
	subject  string
	data     func() any
}

var kinds = map[string]kind{
	domain.MailTypeCreateUser: {
		template: "create_user.html",
		subject:  "Attendance Manager - Your account",
		data:     func() any { return &domain.CreateUserMailData{} },
	},
	domain.MailTypePasswordChanged: {
		template: "password_changed.html",
		subject:  "Attendance Manager - Password changed",
		data:     func() any { return &domain.PasswordChangedMailData{} },
	},
}

type message struct {
	Type string          `json:"type"`
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Mailer struct {
	from      string
	templates *template.Template
	sender    Sender
	logger    *slog.Logger
}

func New(from string, sender Sender, logger *slog.Logger) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Mailer{
		from:      from,
		templates: tmpl,
		sender:    sender,
		logger:    logger,
	}, nil
}

// Compose turns a queued mail message into an email.
func (m *Mailer) Compose(body []byte) (*mail.Msg, error) {
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}

	k, ok := kinds[msg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mail type %q", msg.Type)
	}

	data := k.data()
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, data); err != nil {
			return nil, err
		}
	}

	email := mail.NewMsg()
	if err := email.From(m.from); err != nil {
		return nil, err
	}
	if err := email.To(msg.To); err != nil {
		return nil, err
	}
	email.Subject(k.subject)
	if err := email.SetBodyHTMLTemplate(m.templates.Lookup(k.template), data); err != nil {
		return nil, err
	}

	return email, nil
}

// HandleDelivery is the consumer of the email queue. Messages that can never be sent are
// dropped, SMTP failures are retried.
func (m *Mailer) HandleDelivery(ctx context.Context, d amqp.Delivery) error {
	email, err := m.Compose(d.Body)
	if err != nil {
		return broker.Permanent(err)
	}

	if err := m.sender.DialAndSendWithContext(ctx, email); err != nil {
		return err
	}

	m.logger.Info("mail sent", slog.String("messageId", d.MessageId))
	return nil
}
