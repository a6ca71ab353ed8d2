//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MailpitClient reads the Mailpit inbox over its REST API.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailpitClient creates a client for the API at host:port.
func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitMessage is a message summary; Text is filled by GetMessageByID.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Bcc     []MailpitAddress `json:"Bcc"`
	Subject string           `json:"Subject"`
	Text    string           `json:"Text"`
}

// MailpitAddress is one mailbox.
type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

// AllRecipients returns To and Bcc. Digests go out with every subscriber in
// the SMTP envelope only, which Mailpit reports as Bcc.
func (m *MailpitMessage) AllRecipients() []MailpitAddress {
	return append(append([]MailpitAddress{}, m.To...), m.Bcc...)
}

func (c *MailpitClient) call(method, path string, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetMessages returns every message in the inbox, newest first.
func (c *MailpitClient) GetMessages() ([]MailpitMessage, error) {
	var result struct {
		Messages []MailpitMessage `json:"messages"`
	}
	if err := c.call(http.MethodGet, "/api/v1/messages", &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// GetMessageByID returns one message including its plain text body.
func (c *MailpitClient) GetMessageByID(id string) (*MailpitMessage, error) {
	var msg MailpitMessage
	if err := c.call(http.MethodGet, "/api/v1/message/"+id, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteAllMessages clears the inbox.
func (c *MailpitClient) DeleteAllMessages() error {
	return c.call(http.MethodDelete, "/api/v1/messages", nil)
}

// WaitForMessages polls until the inbox holds at least count messages.
func (c *MailpitClient) WaitForMessages(count int, timeout time.Duration) ([]MailpitMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		messages, err := c.GetMessages()
		if err == nil && len(messages) >= count {
			return messages, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return nil, fmt.Errorf("timeout waiting for %d messages: %w", count, err)
			}
			return messages, fmt.Errorf("timeout waiting for %d messages, got %d", count, len(messages))
		}
		time.Sleep(100 * time.Millisecond)
	}
}
