package mirror

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bissquit/incident-mirror/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status colors.
const (
	ColorResolved   = "#06a51b"
	ColorMonitoring = "#a3a506"
	ColorIdentified = "#a55806"
	ColorUnresolved = "#a50626"
)

// Discord embed limits.
const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFieldNameLength   = 256
	maxFieldValueLength  = 1024
	maxFields            = 25
)

// emptyFieldValue is a zero-width space; embeds reject empty field values.
const emptyFieldValue = "\u200b"

// Render builds the payload for an incident. It is deterministic: the same
// snapshot always yields the same payload.
func Render(incident domain.Incident) Payload {
	fields := make([]Field, 0, len(incident.Updates))
	for _, update := range incident.Updates {
		fields = append(fields, renderUpdate(update))
	}
	// Newest update first.
	slices.Reverse(fields)
	if len(fields) > maxFields {
		fields = fields[:maxFields]
	}

	return Payload{
		Title:       truncate(incident.Name, maxTitleLength),
		URL:         incident.Shortlink,
		Color:       StatusColor(incident.Status),
		Description: truncate(renderDescription(incident), maxDescriptionLength),
		Footer:      incident.ID,
		Timestamp:   incident.UpdatedAt,
		Fields:      fields,
	}
}

// StatusColor maps an incident status to its embed color. Unknown statuses
// render as unresolved.
func StatusColor(status domain.IncidentStatus) string {
	switch status {
	case domain.IncidentStatusResolved:
		return ColorResolved
	case domain.IncidentStatusMonitoring:
		return ColorMonitoring
	case domain.IncidentStatusIdentified:
		return ColorIdentified
	default:
		return ColorUnresolved
	}
}

func renderDescription(incident domain.Incident) string {
	return fmt.Sprintf("• Impact: %s\n• Affected Components: %s",
		incident.Impact,
		strings.Join(incident.ComponentNames(), ", "),
	)
}

func renderUpdate(update domain.IncidentUpdate) Field {
	name := fmt.Sprintf("%s (%s)", statusLabel(update.Status), relativeTime(update.CreatedAt))

	value := update.Body
	if strings.TrimSpace(value) == "" {
		value = emptyFieldValue
	}

	return Field{
		Name:  truncate(name, maxFieldNameLength),
		Value: truncate(value, maxFieldValueLength),
	}
}

var titleCaser = cases.Title(language.English)

// statusLabel turns "in_progress" into "In Progress".
func statusLabel(status domain.IncidentStatus) string {
	words := strings.FieldsFunc(string(status), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return titleCaser.String(strings.Join(words, " "))
}

// relativeTime renders a Discord timestamp that clients display relative to
// the reader's clock.
func relativeTime(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
