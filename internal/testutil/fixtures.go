package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RandomEmail returns a unique address under example.com.
func RandomEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.New().String()[:8])
}

// FeedItem is one entry served by FeedServer.
type FeedItem struct {
	GUID        string
	Title       string
	Description string
	Link        string
	PublishedAt time.Time
}

// FeedServer serves a mutable RSS 2.0 feed.
type FeedServer struct {
	*httptest.Server

	mu     sync.Mutex
	items  []FeedItem
	status int
}

// NewFeedServer starts a feed server with the given items.
func NewFeedServer(items ...FeedItem) *FeedServer {
	fs := &FeedServer{items: items, status: http.StatusOK}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	return fs
}

// SetItems replaces the served items.
func (fs *FeedServer) SetItems(items ...FeedItem) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.items = items
}

// SetStatus makes the server answer with status instead of the feed.
func (fs *FeedServer) SetStatus(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.status = status
}

func (fs *FeedServer) serve(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.status != http.StatusOK {
		w.WriteHeader(fs.status)
		return
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Status</title>`)
	for _, it := range fs.items {
		fmt.Fprintf(&b, "<item><guid>%s</guid><title>%s</title><description>%s</description><link>%s</link><pubDate>%s</pubDate></item>",
			it.GUID, it.Title, it.Description, it.Link, it.PublishedAt.UTC().Format(time.RFC1123Z))
	}
	b.WriteString(`</channel></rss>`)

	w.Header().Set("Content-Type", "application/rss+xml")
	_, _ = w.Write([]byte(b.String()))
}
