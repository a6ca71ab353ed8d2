package domain

import "time"

// ProviderIncidents groups the incidents of one provider.
type ProviderIncidents struct {
	Provider  string     `json:"provider"`
	Incidents []Incident `json:"incidents"`
}

// SourceError records a failed feed retrieval.
type SourceError struct {
	Provider string `json:"provider"`
	Source   string `json:"source"`
	Message  string `json:"message"`
}

// Snapshot is the merged view published after a refresh.
// A published snapshot is never mutated.
type Snapshot struct {
	UpdatedAt time.Time           `json:"updated_at"`
	Providers []ProviderIncidents `json:"providers"`
	Errors    []SourceError       `json:"errors"`
}

// Incidents returns all incidents in provider order.
func (s *Snapshot) Incidents() []Incident {
	if s == nil {
		return nil
	}

	var total int
	for _, p := range s.Providers {
		total += len(p.Incidents)
	}

	out := make([]Incident, 0, total)
	for _, p := range s.Providers {
		out = append(out, p.Incidents...)
	}
	return out
}

// IncidentsByID indexes all incidents by identity.
// For colliding identities the first occurrence wins.
func (s *Snapshot) IncidentsByID() map[string]Incident {
	if s == nil {
		return map[string]Incident{}
	}

	byID := make(map[string]Incident)
	for _, p := range s.Providers {
		for _, inc := range p.Incidents {
			if _, ok := byID[inc.ID]; !ok {
				byID[inc.ID] = inc
			}
		}
	}
	return byID
}

// Provider returns the incidents of a single provider.
func (s *Snapshot) Provider(name string) (ProviderIncidents, bool) {
	if s == nil {
		return ProviderIncidents{}, false
	}
	for _, p := range s.Providers {
		if p.Provider == name {
			return p, true
		}
	}
	return ProviderIncidents{}, false
}

// IncidentCount returns the total number of incidents.
func (s *Snapshot) IncidentCount() int {
	if s == nil {
		return 0
	}
	var n int
	for _, p := range s.Providers {
		n += len(p.Incidents)
	}
	return n
}
