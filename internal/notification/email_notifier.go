package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails each delivery to the recipient's address.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	send     sendMailFunc
	logger   zerolog.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) (*EmailNotifier, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email notifier")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email notifier")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &EmailNotifier{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		send:     smtp.SendMail,
		logger:   logger.With().Str("notifier", "email").Logger(),
	}, nil
}

func (n *EmailNotifier) Notify(_ context.Context, d Delivery) error {
	to := strings.TrimSpace(d.Recipient.Email)
	if to == "" {
		return nil
	}

	subject := strings.TrimSpace(d.Notification.Title)
	if subject == "" {
		subject = "Notification"
	}

	body := strings.Builder{}
	if name := strings.TrimSpace(d.Recipient.Name); name != "" {
		body.WriteString(fmt.Sprintf("Hello %s,\n\n", name))
	}
	body.WriteString(strings.TrimSpace(d.Notification.Message))
	body.WriteString("\n\n")
	if link := strings.TrimSpace(d.Notification.Link); link != "" {
		body.WriteString(link + "\n")
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		n.from, to, subject)

	message := []byte(headers + body.String())
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	if err := n.send(addr, auth, n.from, []string{to}, message); err != nil {
		return err
	}

	n.logger.Info().
		Str("notification_id", d.Notification.ID).
		Str("kind", string(d.Notification.Kind)).
		Str("recipient_id", d.Recipient.ID).
		Msg("email notification sent")
	return nil
}

func (n *EmailNotifier) String() string {
	return "EmailNotifier"
}
