// Package subscribers holds the set of email digest subscribers.
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/pkg/metrics"
)

// ErrInvalidEmail is returned for addresses that are not local@domain.tld.
var ErrInvalidEmail = errors.New("invalid email address")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Repository mirrors subscriber mutations to durable storage.
type Repository interface {
	UpsertSubscriber(ctx context.Context, email string) error
	DeleteSubscriber(ctx context.Context, email string) error
	LoadSubscribers(ctx context.Context) ([]string, error)
}

// Store is the in-memory subscriber set. It is authoritative for the process;
// the optional repository is written best-effort after each mutation.
//
// writeMu serializes mutations together with their repository calls, so the
// repository sees them in the order they were applied in memory.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	emails  map[string]struct{}
	repo    Repository
}

// NewStore creates an empty store. repo may be nil.
func NewStore(repo Repository) *Store {
	return &Store{
		emails: make(map[string]struct{}),
		repo:   repo,
	}
}

// Normalize lowercases and trims an address and validates its shape.
func Normalize(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(normalized) {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// Add subscribes an address. Adding a present address is a no-op.
func (s *Store) Add(ctx context.Context, email string) (string, error) {
	normalized, err := Normalize(email)
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	_, existed := s.emails[normalized]
	s.emails[normalized] = struct{}{}
	count := len(s.emails)
	s.mu.Unlock()

	metrics.Subscribers.Set(float64(count))

	if !existed && s.repo != nil {
		if err := s.repo.UpsertSubscriber(ctx, normalized); err != nil {
			ctxlog.FromContext(ctx).Warn("failed to persist subscriber", "error", err)
		}
	}
	return normalized, nil
}

// Remove unsubscribes an address. Removing an absent address is a no-op.
func (s *Store) Remove(ctx context.Context, email string) (string, error) {
	normalized, err := Normalize(email)
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	_, existed := s.emails[normalized]
	delete(s.emails, normalized)
	count := len(s.emails)
	s.mu.Unlock()

	metrics.Subscribers.Set(float64(count))

	if existed && s.repo != nil {
		if err := s.repo.DeleteSubscriber(ctx, normalized); err != nil {
			ctxlog.FromContext(ctx).Warn("failed to delete persisted subscriber", "error", err)
		}
	}
	return normalized, nil
}

// Count returns the number of subscribers.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.emails)
}

// List returns a sorted copy of all subscribers.
func (s *Store) List() []string {
	s.mu.RLock()
	list := make([]string, 0, len(s.emails))
	for email := range s.emails {
		list = append(list, email)
	}
	s.mu.RUnlock()

	slices.Sort(list)
	return list
}

// Load seeds the store from the repository. Invalid stored addresses are
// skipped. Without a repository it does nothing.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	stored, err := s.repo.LoadSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}

	s.mu.Lock()
	var skipped int
	for _, email := range stored {
		normalized, err := Normalize(email)
		if err != nil {
			skipped++
			continue
		}
		s.emails[normalized] = struct{}{}
	}
	count := len(s.emails)
	s.mu.Unlock()

	metrics.Subscribers.Set(float64(count))
	ctxlog.FromContext(ctx).Info("subscribers loaded", "count", count, "skipped", skipped)
	return nil
}
