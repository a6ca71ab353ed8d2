package notifications

import "github.com/bissquit/incident-radar/internal/domain"

// StatusChange is an incident whose status differs from the previous snapshot.
type StatusChange struct {
	Incident       domain.Incident
	PreviousStatus domain.IncidentStatus
}

// Changes is the difference between two snapshots.
type Changes struct {
	New           []domain.Incident
	StatusChanged []StatusChange
}

// IsEmpty reports whether there is nothing to announce.
func (c Changes) IsEmpty() bool {
	return len(c.New) == 0 && len(c.StatusChanged) == 0
}

// Detector diffs snapshots against each other and the ledger.
type Detector struct {
	ledger   *Ledger
	baseline bool
}

// NewDetector creates a detector. With baseline set, a diff without a
// previous snapshot only records incidents in the ledger and reports nothing.
func NewDetector(ledger *Ledger, baseline bool) *Detector {
	return &Detector{ledger: ledger, baseline: baseline}
}

// Detect computes changes from previous to current and marks new incidents
// in the ledger before returning, so later cycles never report them again.
//
// An incident is new when its id is absent from previous and from the ledger.
// It has a status change when its id is in previous with another status.
func (d *Detector) Detect(previous, current *domain.Snapshot) Changes {
	incidents := current.Incidents()

	if previous == nil && d.baseline {
		ids := make([]string, 0, len(incidents))
		for _, inc := range incidents {
			ids = append(ids, inc.ID)
		}
		d.ledger.Mark(ids...)
		return Changes{}
	}

	before := previous.IncidentsByID()

	var changes Changes
	seen := make(map[string]struct{}, len(incidents))
	for _, inc := range incidents {
		// fallback ids may collide inside one snapshot; report once
		if _, dup := seen[inc.ID]; dup {
			continue
		}
		seen[inc.ID] = struct{}{}

		prev, existed := before[inc.ID]
		switch {
		case !existed && !d.ledger.Contains(inc.ID):
			changes.New = append(changes.New, inc)
		case existed && prev.Status != inc.Status:
			changes.StatusChanged = append(changes.StatusChanged, StatusChange{
				Incident:       inc,
				PreviousStatus: prev.Status,
			})
		}
	}

	ids := make([]string, 0, len(changes.New))
	for _, inc := range changes.New {
		ids = append(ids, inc.ID)
	}
	d.ledger.Mark(ids...)

	return changes
}
