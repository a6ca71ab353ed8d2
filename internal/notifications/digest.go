package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
)

// SubscriberLister returns the current email subscribers.
type SubscriberLister interface {
	List() []string
}

// BatchSender delivers one message to many recipients.
type BatchSender interface {
	Enabled() bool
	SendBatch(ctx context.Context, subject, body string, recipients []string) error
}

// DigestDispatcher mails a digest of changes to all subscribers.
type DigestDispatcher struct {
	subscribers SubscriberLister
	sender      BatchSender
	renderer    *Renderer
}

// NewDigestDispatcher creates a digest dispatcher.
func NewDigestDispatcher(subscribers SubscriberLister, sender BatchSender, renderer *Renderer) *DigestDispatcher {
	return &DigestDispatcher{
		subscribers: subscribers,
		sender:      sender,
		renderer:    renderer,
	}
}

// Dispatch sends the digest. Nothing is sent when there are no changes,
// no subscribers, or email delivery is disabled.
func (d *DigestDispatcher) Dispatch(ctx context.Context, changes Changes) error {
	logger := ctxlog.FromContext(ctx)

	if changes.IsEmpty() {
		return nil
	}
	if d.sender == nil || !d.sender.Enabled() {
		logger.Debug("email digest disabled, skipping")
		return nil
	}

	recipients := d.subscribers.List()
	if len(recipients) == 0 {
		logger.Debug("no email subscribers, skipping digest")
		return nil
	}

	subject, body, err := d.renderer.RenderDigest(changes)
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}

	start := time.Now()
	err = d.sender.SendBatch(ctx, subject, body, recipients)
	recordNotificationDuration(channelEmail, time.Since(start))
	if err != nil {
		recordNotificationSent(channelEmail, "failed")
		return fmt.Errorf("send digest: %w", err)
	}
	recordNotificationSent(channelEmail, "sent")

	logger.Info("email digest sent",
		"recipients", len(recipients),
		"new", len(changes.New),
		"status_changed", len(changes.StatusChanged),
	)
	return nil
}
