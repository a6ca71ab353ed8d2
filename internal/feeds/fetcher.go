// Package feeds retrieves and parses status feeds.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/sources"
	"github.com/mmcdole/gofeed"
)

const (
	defaultUserAgent = "incident-radar/1.0"
	defaultTimeout   = 10 * time.Second
)

// ErrTimeout is returned when a source exceeds its fetch timeout.
var ErrTimeout = errors.New("feed fetch timed out")

// Item is a raw feed entry before classification.
type Item struct {
	GUID        string
	Title       string
	Description string
	Content     string
	Link        string
	Published   *time.Time
}

// FetchError describes a failed retrieval of one source.
type FetchError struct {
	Provider string
	Source   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s: %v", e.Provider, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config holds fetcher configuration.
type Config struct {
	UserAgent string
	Client    *http.Client
}

// Fetcher retrieves feeds over HTTP. Safe for concurrent use.
type Fetcher struct {
	userAgent string
	client    *http.Client
}

// NewFetcher creates a new feed fetcher.
func NewFetcher(config Config) *Fetcher {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Client == nil {
		config.Client = &http.Client{}
	}

	return &Fetcher{
		userAgent: config.UserAgent,
		client:    config.Client,
	}
}

// Fetch retrieves and parses one source within its timeout.
// Any failure, including a timeout, is returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, src sources.Source) ([]Item, error) {
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// gofeed parsers keep per-parse state, one per call.
	fp := gofeed.NewParser()
	fp.UserAgent = f.userAgent
	fp.Client = f.client

	start := time.Now()
	feed, err := fp.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, &FetchError{Provider: src.Provider, Source: src.Name, Err: err}
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, convertItem(it))
	}

	ctxlog.FromContext(ctx).Debug("feed fetched",
		"provider", src.Provider,
		"source", src.Name,
		"items", len(items),
		"duration", time.Since(start),
	)

	return items, nil
}

func convertItem(it *gofeed.Item) Item {
	item := Item{
		GUID:        strings.TrimSpace(it.GUID),
		Title:       strings.TrimSpace(it.Title),
		Description: it.Description,
		Content:     it.Content,
		Link:        strings.TrimSpace(it.Link),
	}

	switch {
	case it.PublishedParsed != nil:
		t := it.PublishedParsed.UTC()
		item.Published = &t
	case it.UpdatedParsed != nil:
		t := it.UpdatedParsed.UTC()
		item.Published = &t
	}

	return item
}
