// Package domain contains the incident feed model shared across packages.
package domain

import "time"

// IncidentStatus is the lifecycle status reported by the status page.
type IncidentStatus string

// Incident statuses published by statuspage.io. Any other value is
// treated as unresolved.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusPostmortem    IncidentStatus = "postmortem"
)

// Incident is one snapshot of a status page incident as delivered by the feed.
// It is immutable for the duration of a pass.
type Incident struct {
	ID         string
	Name       string
	Status     IncidentStatus
	Impact     string
	Shortlink  string
	UpdatedAt  time.Time
	Components []Component
	// Updates are kept in the order the feed delivered them.
	Updates []IncidentUpdate
}

// Component is an affected status page component.
type Component struct {
	ID   string
	Name string
}

// IncidentUpdate is a single entry of an incident's update log.
type IncidentUpdate struct {
	ID        string
	Status    IncidentStatus
	Body      string
	CreatedAt time.Time
}

// ComponentNames returns the affected component names in feed order.
func (i Incident) ComponentNames() []string {
	names := make([]string, 0, len(i.Components))
	for _, c := range i.Components {
		names = append(names, c.Name)
	}
	return names
}
