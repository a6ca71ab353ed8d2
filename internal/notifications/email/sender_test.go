package email

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "enabled without smtp host",
			config: Config{
				Enabled:     true,
				FromAddress: "radar@example.com",
			},
			wantErr: "SMTP host is required",
		},
		{
			name: "enabled without from address",
			config: Config{
				Enabled:  true,
				SMTPHost: "smtp.example.com",
			},
			wantErr: "from address is required",
		},
		{
			name:   "disabled - no validation",
			config: Config{},
		},
		{
			name: "valid config",
			config: Config{
				Enabled:     true,
				SMTPHost:    "smtp.example.com",
				FromAddress: "radar@example.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Enabled, sender.Enabled())
		})
	}
}

func TestNewSender_Defaults(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:      true,
		SMTPHost:     "smtp.example.com",
		FromAddress:  "radar@example.com",
		SMTPUser:     "user",
		SMTPPassword: "pass",
	})
	require.NoError(t, err)

	assert.Equal(t, defaultPort, sender.config.SMTPPort)
	assert.Equal(t, defaultBatchSize, sender.config.BatchSize)
	assert.NotNil(t, sender.auth)
}

func TestExtractEmail(t *testing.T) {
	tests := map[string]string{
		"user@example.com":                  "user@example.com",
		"Radar <noreply@radar.example.com>": "noreply@radar.example.com",
		"<user@example.com>":                "user@example.com",
		"invalid<":                          "invalid<",
		"":                                  "",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, extractEmail(input), input)
	}
}

func TestSender_BuildMessage(t *testing.T) {
	sender := &Sender{
		config: Config{FromAddress: "Radar <noreply@example.com>"},
		now:    func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}

	msg := string(sender.buildMessage("[Cloud Status] 1 new, 0 status changes", "line one\nline two"))

	assert.Contains(t, msg, "From: Radar <noreply@example.com>\r\n")
	assert.Contains(t, msg, "To: undisclosed-recipients:;\r\n")
	assert.Contains(t, msg, "Subject: [Cloud Status] 1 new, 0 status changes\r\n")
	assert.Contains(t, msg, "Date: Fri, 01 Mar 2024 12:00:00 +0000\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=\"utf-8\"\r\n")
	assert.Contains(t, msg, "\r\n\r\nline one\r\nline two")
}

func TestSender_BuildMessage_EncodesNonASCIISubject(t *testing.T) {
	sender := &Sender{now: time.Now}
	msg := string(sender.buildMessage("investigating → resolved", "body"))
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"421 service unavailable", errors.New("421 Service not available"), true},
		{"451 local error", errors.New("451 Local error in processing"), true},
		{"552 mailbox full", errors.New("552 Mailbox full"), true},
		{"550 mailbox not found", errors.New("550 Mailbox not found"), false},
		{"535 auth failed", errors.New("535 Authentication failed"), false},
		{"timeout error", &timeoutError{}, true},
		{"network operation error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func TestSender_SendBatch_Disabled(t *testing.T) {
	sender, err := NewSender(Config{})
	require.NoError(t, err)
	assert.NoError(t, sender.SendBatch(context.Background(), "s", "b", []string{"a@b.co"}))
}

func TestSender_SendBatch_SplitsRecipients(t *testing.T) {
	server := startFakeSMTP(t)

	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "127.0.0.1",
		SMTPPort:    server.port,
		FromAddress: "Radar <radar@example.com>",
		BatchSize:   2,
	})
	require.NoError(t, err)

	recipients := []string{"a@example.com", "b@example.com", "c@example.com"}
	err = sender.SendBatch(context.Background(), "digest", "body", recipients)
	require.NoError(t, err)

	sessions := server.sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sessions[0])
	assert.Equal(t, []string{"c@example.com"}, sessions[1])
}

// fakeSMTP accepts every message and records envelope recipients per session.
type fakeSMTP struct {
	port int

	mu    sync.Mutex
	rcpts [][]string
}

func (f *fakeSMTP) sessions() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rcpts
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	f := &fakeSMTP{}
	f.port, err = strconv.Atoi(port)
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			f.serve(conn)
		}
	}()
	return f
}

func (f *fakeSMTP) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	var rcpts []string
	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))

		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			addr := strings.TrimSpace(line)[len("RCPT TO:"):]
			rcpts = append(rcpts, strings.Trim(addr, "<>"))
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			for {
				data, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if data == ".\r\n" {
					break
				}
			}
			f.mu.Lock()
			f.rcpts = append(f.rcpts, rcpts)
			f.mu.Unlock()
			reply("250 OK")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}
