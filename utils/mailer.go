package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/bloghub/config"
)

// Message is a single outgoing plain text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers a message synchronously.
type Mailer interface {
	Deliver(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through the configured SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	useTLS   bool
	username string
	password string
	sender   string
}

// NewSMTPMailer builds an SMTPMailer from the MAIL_* settings.
func NewSMTPMailer(cfg *config.AppConfig) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.MailServer,
		port:     cfg.MailPort,
		useTLS:   cfg.MailUseTLS,
		username: cfg.MailUsername,
		password: cfg.MailPassword,
		sender:   cfg.MailSender,
	}
}

// Deliver sends msg. Port 465 uses implicit TLS; otherwise STARTTLS is used when enabled and offered.
func (m *SMTPMailer) Deliver(ctx context.Context, msg Message) error {
	if m.host == "" || m.sender == "" {
		return fmt.Errorf("smtp not configured")
	}
	from, err := mail.ParseAddress(m.sender)
	if err != nil {
		return fmt.Errorf("parse sender: %w", err)
	}
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	d := net.Dialer{Timeout: 5 * time.Second}
	var conn net.Conn
	if m.port == 465 {
		conn, err = tls.DialWithDialer(&d, "tcp", addr, &tls.Config{ServerName: m.host})
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	// ensure we don't hang forever
	deadline := time.Now().Add(15 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if m.port != 465 && m.useTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
				return err
			}
		}
	}
	if m.username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(from.Address); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(buildMessage(m.sender, msg)); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(sender string, msg Message) []byte {
	headers := [][2]string{
		{"From", sender},
		{"To", msg.To},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}
	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Text, "\n", "\r\n"))
	return []byte(b.String())
}

// MailDispatcher sends mail in the background. Failures are logged and never reach the caller.
type MailDispatcher struct {
	mailer  Mailer
	prefix  string
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewMailDispatcher wraps mailer, prefixing every subject with prefix.
func NewMailDispatcher(mailer Mailer, prefix string) *MailDispatcher {
	return &MailDispatcher{mailer: mailer, prefix: prefix, timeout: 30 * time.Second}
}

// Send queues msg and returns immediately.
func (d *MailDispatcher) Send(msg Message) {
	if d == nil || d.mailer == nil || msg.To == "" {
		return
	}
	if d.prefix != "" {
		msg.Subject = d.prefix + " " + msg.Subject
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.mailer.Deliver(ctx, msg); err != nil {
			Logger.Warn("mail delivery failed",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err))
		}
	}()
}

// Wait blocks until queued messages have been handed to the mailer.
func (d *MailDispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}
