package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/feeds"
	"github.com/bissquit/incident-radar/internal/incidents"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/sources"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the raw items of one source.
type Fetcher interface {
	Fetch(ctx context.Context, src sources.Source) ([]feeds.Item, error)
}

// ChangeNotifier is told about every snapshot before it is published.
type ChangeNotifier interface {
	OnRefresh(ctx context.Context, previous, current *domain.Snapshot) error
}

// IncidentSink persists incidents.
type IncidentSink interface {
	UpsertIncidents(ctx context.Context, incidents []domain.Incident) error
}

// OrchestratorConfig contains orchestrator configuration.
type OrchestratorConfig struct {
	NotifyTimeout  time.Duration
	PersistTimeout time.Duration
}

// Orchestrator runs one refresh cycle: fetch, classify, merge, notify, persist.
// It does not serialize cycles itself; the Cache does.
type Orchestrator struct {
	sources  []sources.Source
	fetcher  Fetcher
	notifier ChangeNotifier
	sink     IncidentSink
	config   OrchestratorConfig
	now      func() time.Time
}

// NewOrchestrator creates a new refresh orchestrator.
// notifier and sink may be nil.
func NewOrchestrator(registry *sources.Registry, fetcher Fetcher, notifier ChangeNotifier, sink IncidentSink, config OrchestratorConfig) *Orchestrator {
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = 30 * time.Second
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 10 * time.Second
	}

	return &Orchestrator{
		sources:  registry.Sources(),
		fetcher:  fetcher,
		notifier: notifier,
		sink:     sink,
		config:   config,
		now:      time.Now,
	}
}

type sourceResult struct {
	source    sources.Source
	incidents []domain.Incident
	err       error
}

// Refresh implements Refresher.
func (o *Orchestrator) Refresh(ctx context.Context, previous *domain.Snapshot) (*domain.Snapshot, error) {
	ctx, logger := ctxlog.With(ctx, "refresh_id", uuid.New().String())
	start := time.Now()

	results := o.fetchAll(ctx)
	next := o.merge(results)

	logger.Info("snapshot merged",
		"providers", len(next.Providers),
		"incidents", next.IncidentCount(),
		"source_errors", len(next.Errors),
	)

	if o.notifier != nil {
		o.attempt(ctx, "notify", o.config.NotifyTimeout, func(ctx context.Context) error {
			return o.notifier.OnRefresh(ctx, previous, next)
		})
	}

	if o.sink != nil {
		o.attempt(ctx, "persist", o.config.PersistTimeout, func(ctx context.Context) error {
			return o.sink.UpsertIncidents(ctx, next.Incidents())
		})
	}

	recordRefresh(next, time.Since(start))
	return next, nil
}

// fetchAll fetches and classifies every source concurrently.
// Every task returns nil so one failing source never cancels the others.
func (o *Orchestrator) fetchAll(ctx context.Context) []sourceResult {
	results := make([]sourceResult, len(o.sources))

	var g errgroup.Group
	for i, src := range o.sources {
		g.Go(func() error {
			items, err := o.fetcher.Fetch(ctx, src)
			if err != nil {
				ctxlog.FromContext(ctx).Warn("source fetch failed",
					"provider", src.Provider,
					"source", src.Name,
					"error", err,
				)
				recordSourceFailure(src)
				results[i] = sourceResult{source: src, err: err}
				return nil
			}
			results[i] = sourceResult{source: src, incidents: incidents.NormalizeAll(src, items)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// merge groups results by provider in source order and sorts each provider.
func (o *Orchestrator) merge(results []sourceResult) *domain.Snapshot {
	snap := &domain.Snapshot{
		UpdatedAt: o.now().UTC(),
		Providers: make([]domain.ProviderIncidents, 0),
		Errors:    make([]domain.SourceError, 0),
	}

	index := make(map[string]int)
	for _, res := range results {
		if res.err != nil {
			snap.Errors = append(snap.Errors, domain.SourceError{
				Provider: res.source.Provider,
				Source:   res.source.Name,
				Message:  res.err.Error(),
			})
			continue
		}

		i, ok := index[res.source.Provider]
		if !ok {
			i = len(snap.Providers)
			index[res.source.Provider] = i
			snap.Providers = append(snap.Providers, domain.ProviderIncidents{
				Provider:  res.source.Provider,
				Incidents: make([]domain.Incident, 0, len(res.incidents)),
			})
		}
		snap.Providers[i].Incidents = append(snap.Providers[i].Incidents, res.incidents...)
	}

	for i := range snap.Providers {
		SortIncidents(snap.Providers[i].Incidents)
	}

	return snap
}

// SortIncidents orders by severity rank ascending, then publish time descending.
// Incidents without a publish time sort as oldest.
func SortIncidents(list []domain.Incident) {
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := list[i].Severity.Rank(), list[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return publishedUnix(list[i]) > publishedUnix(list[j])
	})
}

func publishedUnix(inc domain.Incident) int64 {
	if inc.PublishedAt == nil {
		return -1 << 62
	}
	return inc.PublishedAt.UnixNano()
}

// attempt runs a best-effort side effect. Errors and panics are logged, never returned.
func (o *Orchestrator) attempt(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := ctxlog.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("side effect panicked", "step", name, "panic", fmt.Sprint(r))
			recordSideEffectFailure(name)
		}
	}()

	if err := fn(ctx); err != nil {
		logger.Error("side effect failed", "step", name, "error", err)
		recordSideEffectFailure(name)
		return
	}
	logger.Log(ctx, slog.LevelDebug, "side effect completed", "step", name)
}
