// Package notifications detects snapshot changes and notifies chat targets and email subscribers.
package notifications

import (
	"context"
	"errors"
	"fmt"
)

// ChannelType identifies a chat transport.
type ChannelType string

// Chat channel types.
const (
	ChannelTypeMattermost ChannelType = "mattermost"
	ChannelTypeSlack      ChannelType = "slack"
	ChannelTypeTelegram   ChannelType = "telegram"
)

// IsValid checks if the channel type is supported.
func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelTypeMattermost, ChannelTypeSlack, ChannelTypeTelegram:
		return true
	}
	return false
}

// ErrNoSender is returned when a chat target has no registered transport.
var ErrNoSender = errors.New("no sender for channel type")

// Notification is a rendered message for a single target.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a notification over one chat transport.
type Sender interface {
	Type() ChannelType
	Send(ctx context.Context, notification Notification) error
}

// ChatTarget is a configured chat destination.
// Target is a webhook URL for mattermost/slack and a chat id for telegram.
type ChatTarget struct {
	Type   ChannelType
	Target string
}

func (t ChatTarget) String() string {
	return fmt.Sprintf("%s:%s", t.Type, maskTarget(t.Target))
}

// maskTarget hides the secret part of webhook URLs for logging.
func maskTarget(target string) string {
	if len(target) > 40 {
		return target[:20] + "..." + target[len(target)-6:]
	}
	return target
}
