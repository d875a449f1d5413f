// Package notify delivers operator-facing alerts for failures the sync
// engine cannot resolve on its own. Callers must redact credentials
// from message bodies before handing them over.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/forgesync/forgesync/internal/log"
)

// Notifier sends one operator notification.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// LogNotifier writes notifications to the log. It is the fallback when
// no mail transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, subject, body string) error {
	log.Error("operator notification", "subject", subject, "detail", body)
	return nil
}

// SMTPNotifier mails the admin list.
type SMTPNotifier struct {
	Addr     string // host:port
	From     string
	To       []string
	Username string
	Password string
}

func (n *SMTPNotifier) Notify(_ context.Context, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	var a smtp.Auth
	if n.Username != "" {
		host, _, _ := strings.Cut(n.Addr, ":")
		a = smtp.PlainAuth("", n.Username, n.Password, host)
	}
	if err := smtp.SendMail(n.Addr, a, n.From, n.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("send admin mail: %w", err)
	}
	return nil
}
