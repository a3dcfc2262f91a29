package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SMTPOptions struct {
	Addr     string
	Username string
	Password string
	From     string
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailRelay sends plain-text mail through an SMTP relay. Attachments are
// URLs and are listed below the body.
type EmailRelay struct {
	opts     SMTPOptions
	sendMail SendMailFunc
	now      func() time.Time
}

func NewEmailRelay(opts SMTPOptions, send SendMailFunc) *EmailRelay {
	if send == nil {
		send = smtp.SendMail
	}
	return &EmailRelay{opts: opts, sendMail: send, now: time.Now}
}

func (e *EmailRelay) Send(ctx context.Context, env Envelope) (string, error) {
	to := strings.TrimSpace(env.Destination)
	if to == "" || !strings.Contains(to, "@") {
		return "", Permanent(fmt.Errorf("email: invalid destination %q", env.Destination))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var auth smtp.Auth
	if e.opts.Username != "" {
		host, _, err := net.SplitHostPort(e.opts.Addr)
		if err != nil {
			return "", Permanent(fmt.Errorf("email: relay addr: %w", err))
		}
		auth = smtp.PlainAuth("", e.opts.Username, e.opts.Password, host)
	}

	id := fmt.Sprintf("<%s@nudge>", uuid.NewString())
	msg := e.compose(id, to, env)

	if err := e.sendMail(e.opts.Addr, auth, e.opts.From, []string{to}, msg); err != nil {
		var perr *textproto.Error
		if errors.As(err, &perr) && perr.Code >= 500 {
			return "", Permanent(fmt.Errorf("email: %w", err))
		}
		return "", fmt.Errorf("email: %w", err)
	}
	return id, nil
}

func (e *EmailRelay) compose(id, to string, env Envelope) []byte {
	subject := env.Subject
	if subject == "" {
		subject = "A note from your assistant"
	}

	var b strings.Builder
	b.WriteString("From: " + e.opts.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + strings.ReplaceAll(subject, "\n", " ") + "\r\n")
	b.WriteString("Date: " + e.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: " + id + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(env.Body, "\n", "\r\n"))
	if len(env.Attachments) > 0 {
		b.WriteString("\r\n\r\nAttachments:\r\n")
		for _, a := range env.Attachments {
			b.WriteString("- " + a + "\r\n")
		}
	}
	return []byte(b.String())
}
