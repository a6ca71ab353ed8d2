package notifications

import (
	"context"
	"errors"
	"sync"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
)

// Notifier reacts to published snapshots: it detects changes once and hands
// them to the chat and digest dispatchers.
type Notifier struct {
	detector *Detector
	chat     *ChatDispatcher
	digest   *DigestDispatcher
}

// NewNotifier creates a notifier. chat and digest may be nil.
func NewNotifier(detector *Detector, chat *ChatDispatcher, digest *DigestDispatcher) *Notifier {
	return &Notifier{
		detector: detector,
		chat:     chat,
		digest:   digest,
	}
}

// OnRefresh diffs previous against current and delivers notifications.
// Chat gets new incidents only; the digest gets new incidents and status changes.
func (n *Notifier) OnRefresh(ctx context.Context, previous, current *domain.Snapshot) error {
	changes := n.detector.Detect(previous, current)
	if changes.IsEmpty() {
		return nil
	}
	recordChanges(changes)

	ctxlog.FromContext(ctx).Info("snapshot changes detected",
		"new", len(changes.New),
		"status_changed", len(changes.StatusChanged),
	)

	var (
		wg                 sync.WaitGroup
		chatErr, digestErr error
	)
	if n.chat != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chatErr = n.chat.Dispatch(ctx, changes.New)
		}()
	}
	if n.digest != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			digestErr = n.digest.Dispatch(ctx, changes)
		}()
	}
	wg.Wait()

	return errors.Join(chatErr, digestErr)
}
