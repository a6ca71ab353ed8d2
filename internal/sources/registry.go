// Package sources provides the registry of cloud provider status feeds.
package sources

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateSource is returned when two sources share provider and name.
var ErrDuplicateSource = errors.New("duplicate source")

// Source describes a single status feed.
type Source struct {
	Provider string
	Name     string
	URL      string
	Timeout  time.Duration
}

// Key returns the provider-qualified source name.
func (s Source) Key() string {
	return s.Provider + "/" + s.Name
}

// Registry is an ordered, immutable list of sources.
type Registry struct {
	sources []Source
}

// NewRegistry creates a registry. Sources without a timeout get defaultTimeout.
func NewRegistry(list []Source, defaultTimeout time.Duration) (*Registry, error) {
	seen := make(map[string]struct{}, len(list))
	out := make([]Source, 0, len(list))

	for _, s := range list {
		if s.Provider == "" || s.Name == "" || s.URL == "" {
			return nil, fmt.Errorf("source %q: provider, name and url are required", s.Key())
		}
		if _, ok := seen[s.Key()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, s.Key())
		}
		seen[s.Key()] = struct{}{}

		if s.Timeout <= 0 {
			s.Timeout = defaultTimeout
		}
		out = append(out, s)
	}

	return &Registry{sources: out}, nil
}

// Sources returns a copy of the registered sources in registration order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Providers returns distinct provider names in registration order.
func (r *Registry) Providers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range r.sources {
		if _, ok := seen[s.Provider]; ok {
			continue
		}
		seen[s.Provider] = struct{}{}
		out = append(out, s.Provider)
	}
	return out
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// Defaults returns the built-in feed list.
func Defaults() []Source {
	return []Source{
		{Provider: "AWS", Name: "All Services", URL: "https://status.aws.amazon.com/rss/all.rss"},
		{Provider: "Azure", Name: "Azure Status", URL: "https://azure.status.microsoft/en-us/status/feed/"},
		{Provider: "Google Cloud", Name: "Cloud Status", URL: "https://status.cloud.google.com/en/feed.atom"},
		{Provider: "Cloudflare", Name: "Cloudflare Status", URL: "https://www.cloudflarestatus.com/history.atom"},
		{Provider: "GitHub", Name: "GitHub Status", URL: "https://www.githubstatus.com/history.rss"},
	}
}
