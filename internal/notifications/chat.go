package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
)

// ChatDispatcher announces new incidents to every configured chat target.
type ChatDispatcher struct {
	targets  []ChatTarget
	senders  map[ChannelType]Sender
	renderer *Renderer
}

// NewChatDispatcher creates a dispatcher. Senders are keyed by their Type.
func NewChatDispatcher(targets []ChatTarget, renderer *Renderer, senders ...Sender) *ChatDispatcher {
	senderMap := make(map[ChannelType]Sender, len(senders))
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &ChatDispatcher{
		targets:  targets,
		senders:  senderMap,
		renderer: renderer,
	}
}

// Dispatch sends one message listing the new incidents to all targets concurrently.
// Failures are logged per target and joined into the returned error.
func (d *ChatDispatcher) Dispatch(ctx context.Context, incidents []domain.Incident) error {
	if len(incidents) == 0 || len(d.targets) == 0 {
		return nil
	}

	subject, body, err := d.renderer.RenderChat(incidents)
	if err != nil {
		return fmt.Errorf("render chat message: %w", err)
	}

	logger := ctxlog.FromContext(ctx)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, target := range d.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.send(ctx, target, subject, body); err != nil {
				logger.Error("failed to send chat notification",
					"target", target.String(),
					"error", err,
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", target, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	logger.Info("chat notifications dispatched",
		"incidents", len(incidents),
		"targets", len(d.targets),
		"failed", len(errs),
	)

	return errors.Join(errs...)
}

func (d *ChatDispatcher) send(ctx context.Context, target ChatTarget, subject, body string) error {
	sender, ok := d.senders[target.Type]
	if !ok {
		recordNotificationSent(string(target.Type), "skipped")
		return fmt.Errorf("%w: %s", ErrNoSender, target.Type)
	}

	start := time.Now()
	err := sender.Send(ctx, Notification{
		To:      target.Target,
		Subject: subject,
		Body:    body,
	})
	recordNotificationDuration(string(target.Type), time.Since(start))

	if err != nil {
		recordNotificationSent(string(target.Type), "failed")
		return err
	}
	recordNotificationSent(string(target.Type), "sent")
	return nil
}
