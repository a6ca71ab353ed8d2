package incidents

import (
	"strings"
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/feeds"
	"github.com/bissquit/incident-radar/internal/sources"
	"github.com/stretchr/testify/assert"
)

var testSource = sources.Source{Provider: "Azure", Name: "Status"}

func TestIdentity_PrefersGUID(t *testing.T) {
	id := Identity(testSource, feeds.Item{GUID: "abc-123", Title: "Anything"})
	assert.Equal(t, "abc-123", id)
}

func TestIdentity_FallbackIsStable(t *testing.T) {
	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	item := feeds.Item{Title: "Storage issue", Published: &published}

	first := Identity(testSource, item)
	second := Identity(testSource, item)

	assert.Equal(t, first, second)
	assert.Equal(t, "Azure/Status|2024-03-01T10:00:00Z|Storage issue", first)
}

func TestIdentity_FallbackWithoutTimestamp(t *testing.T) {
	id := Identity(testSource, feeds.Item{Title: "Storage issue"})
	assert.Equal(t, "Azure/Status||Storage issue", id)
}

func TestNormalize(t *testing.T) {
	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	inc := Normalize(testSource, feeds.Item{
		GUID:        "g1",
		Title:       "  Outage in West Europe ",
		Description: "<p>Customers &amp; partners are <b>unable</b> to sign in.</p>",
		Link:        "https://status.example.com/1",
		Published:   &published,
	})

	assert.Equal(t, "g1", inc.ID)
	assert.Equal(t, "Azure", inc.Provider)
	assert.Equal(t, "Status", inc.Source)
	assert.Equal(t, "Outage in West Europe", inc.Title)
	assert.Equal(t, "Customers & partners are unable to sign in.", inc.Summary)
	assert.Equal(t, domain.IncidentStatusIncident, inc.Status)
	assert.Equal(t, domain.SeverityCritical, inc.Severity)
	assert.Equal(t, &published, inc.PublishedAt)
}

func TestNormalize_SummaryFallsBackToContent(t *testing.T) {
	inc := Normalize(testSource, feeds.Item{Title: "Update", Content: "We are investigating."})
	assert.Equal(t, "We are investigating.", inc.Summary)
	assert.Equal(t, domain.IncidentStatusInvestigating, inc.Status)
}

func TestNormalize_TruncatesSummary(t *testing.T) {
	inc := Normalize(testSource, feeds.Item{Title: "Long", Description: strings.Repeat("a", 600)})
	assert.Equal(t, maxSummaryRunes+1, len([]rune(inc.Summary)))
	assert.True(t, strings.HasSuffix(inc.Summary, "…"))
}

func TestNormalizeAll_PreservesOrder(t *testing.T) {
	out := NormalizeAll(testSource, []feeds.Item{{GUID: "1"}, {GUID: "2"}, {GUID: "3"}})
	ids := make([]string, 0, len(out))
	for _, inc := range out {
		ids = append(ids, inc.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}
