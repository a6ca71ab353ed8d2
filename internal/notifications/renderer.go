package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const (
	templateChat   = "chat"
	templateDigest = "email_digest"

	defaultMaxItems = 5
)

// Renderer renders chat messages and email digests from embedded templates.
type Renderer struct {
	templates map[string]*template.Template
	maxItems  int
	baseURL   string
	now       func() time.Time
}

// NewRenderer loads all templates. maxItems caps each rendered list.
func NewRenderer(maxItems int, baseURL string) (*Renderer, error) {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	funcMap := template.FuncMap{
		"title":         titleCase,
		"upper":         strings.ToUpper,
		"formatTime":    formatTime,
		"ago":           ago,
		"severityEmoji": severityEmoji,
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		maxItems:  maxItems,
		baseURL:   baseURL,
		now:       time.Now,
	}

	for _, name := range []string{templateChat, templateDigest} {
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	return r, nil
}

type chatData struct {
	Incidents []domain.Incident
	Remaining int
}

type digestData struct {
	GeneratedAt            time.Time
	New                    []domain.Incident
	NewTotal               int
	NewRemaining           int
	StatusChanged          []StatusChange
	StatusChangedTotal     int
	StatusChangedRemaining int
	BaseURL                string
}

// RenderChat renders the announcement of new incidents, keeping merge order.
func (r *Renderer) RenderChat(incidents []domain.Incident) (subject, body string, err error) {
	shown := capList(incidents, r.maxItems)

	subject = fmt.Sprintf("%d new cloud incident%s", len(incidents), plural(len(incidents)))
	body, err = r.execute(templateChat, chatData{
		Incidents: shown,
		Remaining: len(incidents) - len(shown),
	})
	return subject, body, err
}

// RenderDigest renders the email digest for a set of changes.
func (r *Renderer) RenderDigest(changes Changes) (subject, body string, err error) {
	newShown := capList(changes.New, r.maxItems)
	changedShown := capList(changes.StatusChanged, r.maxItems)

	subject = fmt.Sprintf("[Cloud Status] %d new, %d status change%s",
		len(changes.New), len(changes.StatusChanged), plural(len(changes.StatusChanged)))

	body, err = r.execute(templateDigest, digestData{
		GeneratedAt:            r.now(),
		New:                    newShown,
		NewTotal:               len(changes.New),
		NewRemaining:           len(changes.New) - len(newShown),
		StatusChanged:          changedShown,
		StatusChangedTotal:     len(changes.StatusChanged),
		StatusChangedRemaining: len(changes.StatusChanged) - len(changedShown),
		BaseURL:                r.baseURL,
	})
	return subject, body, err
}

func (r *Renderer) execute(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func capList[T any](list []T, limit int) []T {
	if len(list) <= limit {
		return list
	}
	return list[:limit]
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func ago(t *time.Time) string {
	if t == nil {
		return ""
	}
	return humanize.Time(*t)
}

func severityEmoji(severity domain.Severity) string {
	switch severity {
	case domain.SeverityCritical:
		return "🔴"
	case domain.SeverityHigh:
		return "🟠"
	case domain.SeverityMedium:
		return "🟡"
	default:
		return "⚪"
	}
}
