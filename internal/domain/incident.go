// Package domain contains the core types shared across the incident radar modules.
package domain

import "time"

// IncidentStatus is the lifecycle stage derived from incident text.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusInfo          IncidentStatus = "info"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIncident      IncidentStatus = "incident"
	IncidentStatusDegraded      IncidentStatus = "degraded"
	IncidentStatusMaintenance   IncidentStatus = "maintenance"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// Severity is the impact level derived from incident text.
type Severity string

// Severities, most severe first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the sort ordinal of the severity: critical=0 ... low=3.
// Unknown severities rank after low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Incident is a classified feed item.
type Incident struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	Source      string         `json:"source"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	Status      IncidentStatus `json:"status"`
	Severity    Severity       `json:"severity"`
	Link        string         `json:"link,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}
