// Package incidents turns raw feed items into classified incidents.
package incidents

import (
	"strings"
	"unicode"

	"github.com/bissquit/incident-radar/internal/domain"
)

// Term lists are matched as case-insensitive substrings. Order of the rules
// below is the precedence; the first matching rule wins.
var (
	resolvedTerms      = []string{"resolved", "mitigated", "restored", "stabilized", "recovering"}
	investigatingTerms = []string{"investigating"}
	maintenanceTerms   = []string{"maintenance"}
	degradedTerms      = []string{"degraded", "degradation", "intermittent", "delays", "delayed", "elevated", "partial"}
	outageTerms        = []string{"outage", "incident", "disruption", "interruption", "unavailable"}

	criticalTerms = []string{"outage", "unavailable", "complete failure"}
	highTerms     = []string{
		"failure", "unable", "major",
		"multiple regions", "multi-region", "several regions", "all regions",
		"dependent services", "dependent service", "downstream services",
	}
	mediumTerms = []string{"degraded", "intermittent", "delays", "elevated latency"}
)

// regionDirections are tokens that name a directional region, both as plain
// words ("East US") and as glued region ids ("westeurope", "us-east-1").
var regionDirections = map[string]struct{}{
	"east": {}, "west": {}, "north": {}, "south": {}, "central": {},
	"northeast": {}, "northwest": {}, "southeast": {}, "southwest": {},
	"eastus": {}, "westus": {}, "centralus": {}, "northcentralus": {}, "southcentralus": {}, "westcentralus": {},
	"northeurope": {}, "westeurope": {}, "eastasia": {}, "southeastasia": {},
}

// Classify derives status and severity from an item's title and content text.
// It is total and deterministic.
func Classify(title, content string) (domain.IncidentStatus, domain.Severity) {
	text := strings.ToLower(title + " " + content)
	return classifyStatus(text), classifySeverity(text)
}

func classifyStatus(text string) domain.IncidentStatus {
	switch {
	case containsAny(text, resolvedTerms):
		return domain.IncidentStatusResolved
	case containsAny(text, investigatingTerms):
		return domain.IncidentStatusInvestigating
	case containsAny(text, maintenanceTerms):
		return domain.IncidentStatusMaintenance
	case containsAny(text, degradedTerms):
		return domain.IncidentStatusDegraded
	case containsAny(text, outageTerms):
		return domain.IncidentStatusIncident
	default:
		return domain.IncidentStatusInfo
	}
}

func classifySeverity(text string) domain.Severity {
	switch {
	case containsAny(text, criticalTerms):
		return domain.SeverityCritical
	case containsAny(text, highTerms), countRegionDirections(text) >= 2:
		return domain.SeverityHigh
	case containsAny(text, mediumTerms):
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// countRegionDirections counts distinct directional region tokens.
func countRegionDirections(text string) int {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	seen := make(map[string]struct{})
	for _, w := range words {
		if _, ok := regionDirections[w]; ok {
			seen[w] = struct{}{}
		}
	}
	return len(seen)
}
