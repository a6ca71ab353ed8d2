// Package email delivers digest emails via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const (
	defaultPort      = 587
	defaultBatchSize = 50
	dialTimeout      = 10 * time.Second
	retryDelay       = 2 * time.Second
)

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	BatchSize    int
	// DisableTLS skips STARTTLS, for local relays only.
	DisableTLS bool
}

// Sender sends plain-text emails to subscribers, hidden from each other.
type Sender struct {
	config Config
	auth   smtp.Auth
	now    func() time.Time
}

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = defaultPort
	}
	if config.BatchSize == 0 {
		config.BatchSize = defaultBatchSize
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"batch_size", config.BatchSize,
	)

	return &Sender{
		config: config,
		auth:   auth,
		now:    time.Now,
	}, nil
}

// Enabled reports whether digests should be sent.
func (s *Sender) Enabled() bool {
	return s.config.Enabled
}

// SendBatch sends one email to all recipients using BCC.
// Recipients are split into batches to respect SMTP server limits.
// A batch failing with a temporary error is retried once.
func (s *Sender) SendBatch(ctx context.Context, subject, body string, recipients []string) error {
	if !s.config.Enabled {
		slog.Warn("email sender disabled, skipping send",
			"recipient_count", len(recipients),
		)
		return nil
	}

	if len(recipients) == 0 {
		return nil
	}

	msg := s.buildMessage(subject, body)

	var errs []error
	for i := 0; i < len(recipients); i += s.config.BatchSize {
		end := min(i+s.config.BatchSize, len(recipients))
		batch := recipients[i:end]

		err := s.sendEmail(ctx, batch, msg)
		if err != nil && IsRetryable(err) {
			select {
			case <-ctx.Done():
				return errors.Join(append(errs, ctx.Err())...)
			case <-time.After(retryDelay):
			}
			err = s.sendEmail(ctx, batch, msg)
		}
		if err != nil {
			slog.Error("failed to send email batch",
				"batch_start", i,
				"batch_size", len(batch),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("batch %d: %w", i/s.config.BatchSize, err))
			continue
		}

		slog.Info("email batch sent",
			"batch_start", i,
			"batch_size", len(batch),
		)
	}

	return errors.Join(errs...)
}

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(subject, body string) []byte {
	var msg strings.Builder

	// Headers in deterministic order
	fmt.Fprintf(&msg, "From: %s\r\n", s.config.FromAddress)
	msg.WriteString("To: undisclosed-recipients:;\r\n")
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(msg.String())
}

// sendEmail delivers msg to recipients over one SMTP session.
func (s *Sender) sendEmail(ctx context.Context, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(s.config.SMTPHost, fmt.Sprint(s.config.SMTPPort))

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok && !s.config.DisableTLS {
		tlsConfig := &tls.Config{
			ServerName: s.config.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	// BCC: recipients are in the envelope only
	var added int
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			slog.Warn("failed to add recipient", "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		return errors.New("no valid recipients")
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

// IsRetryable reports whether an SMTP error is temporary.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// 4xx replies are transient; 552 mailbox full often clears
	errStr := err.Error()
	for _, code := range []string{"421", "450", "451", "452", "552"} {
		if strings.Contains(errStr, code) {
			return true
		}
	}

	return false
}
