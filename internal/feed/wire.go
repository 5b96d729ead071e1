package feed

import (
	"time"

	"github.com/bissquit/incident-mirror/internal/domain"
)

type incidentsResponse struct {
	Incidents []incident `json:"incidents"`
}

type incident struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Status          string           `json:"status"`
	Impact          string           `json:"impact"`
	Shortlink       string           `json:"shortlink"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       *time.Time       `json:"updated_at"`
	Components      []component      `json:"components"`
	IncidentUpdates []incidentUpdate `json:"incident_updates"`
}

type component struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type incidentUpdate struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (in incident) toDomain() domain.Incident {
	out := domain.Incident{
		ID:        in.ID,
		Name:      in.Name,
		Status:    domain.IncidentStatus(in.Status),
		Impact:    in.Impact,
		Shortlink: in.Shortlink,
		UpdatedAt: in.CreatedAt,
	}
	if in.UpdatedAt != nil {
		out.UpdatedAt = *in.UpdatedAt
	}

	for _, c := range in.Components {
		out.Components = append(out.Components, domain.Component{ID: c.ID, Name: c.Name})
	}
	for _, u := range in.IncidentUpdates {
		out.Updates = append(out.Updates, domain.IncidentUpdate{
			ID:        u.ID,
			Status:    domain.IncidentStatus(u.Status),
			Body:      u.Body,
			CreatedAt: u.CreatedAt,
		})
	}
	return out
}
