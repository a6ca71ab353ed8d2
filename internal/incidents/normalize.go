package incidents

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/feeds"
	"github.com/bissquit/incident-radar/internal/sources"
)

const maxSummaryRunes = 500

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Identity derives the incident id for an item.
//
// The source-provided GUID is used when present. Otherwise the id falls back
// to source|published|title, which collides for distinct items sharing a
// title and timestamp within one source.
func Identity(src sources.Source, item feeds.Item) string {
	if item.GUID != "" {
		return item.GUID
	}

	var published string
	if item.Published != nil {
		published = item.Published.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s|%s|%s", src.Key(), published, item.Title)
}

// Normalize converts a raw item from src into a classified incident.
func Normalize(src sources.Source, item feeds.Item) domain.Incident {
	description := plainText(item.Description)
	content := plainText(item.Content)

	summary := description
	if summary == "" {
		summary = content
	}

	status, severity := Classify(item.Title, strings.TrimSpace(description+" "+content))

	return domain.Incident{
		ID:          Identity(src, item),
		Provider:    src.Provider,
		Source:      src.Name,
		Title:       strings.TrimSpace(item.Title),
		Summary:     truncate(summary, maxSummaryRunes),
		Status:      status,
		Severity:    severity,
		Link:        item.Link,
		PublishedAt: item.Published,
	}
}

// NormalizeAll converts every item of one source.
func NormalizeAll(src sources.Source, items []feeds.Item) []domain.Incident {
	out := make([]domain.Incident, 0, len(items))
	for _, it := range items {
		out = append(out, Normalize(src, it))
	}
	return out
}

func plainText(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
