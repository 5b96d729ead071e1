package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/incident-mirror/internal/mirror"
)

// Discord accepts ISO 8601; millisecond precision matches what it stores.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type webhookMessage struct {
	Content         string           `json:"content,omitempty"`
	Username        string           `json:"username,omitempty"`
	AvatarURL       string           `json:"avatar_url,omitempty"`
	Embeds          []embed          `json:"embeds"`
	AllowedMentions *allowedMentions `json:"allowed_mentions,omitempty"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

type message struct {
	ID     string  `json:"id"`
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func toEmbed(p mirror.Payload) embed {
	e := embed{
		Title:       p.Title,
		URL:         p.URL,
		Description: p.Description,
		Color:       parseColor(p.Color),
	}
	if !p.Timestamp.IsZero() {
		e.Timestamp = p.Timestamp.UTC().Format(timestampLayout)
	}
	if p.Footer != "" {
		e.Footer = &embedFooter{Text: p.Footer}
	}
	for _, f := range p.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return e
}

func fromEmbed(e embed) mirror.Payload {
	p := mirror.Payload{
		Title:       e.Title,
		URL:         e.URL,
		Description: e.Description,
		Color:       fmt.Sprintf("#%06x", e.Color),
	}
	// An unparsable timestamp stays zero and never matches an incident.
	if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		p.Timestamp = ts
	}
	if e.Footer != nil {
		p.Footer = e.Footer.Text
	}
	for _, f := range e.Fields {
		p.Fields = append(p.Fields, mirror.Field{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return p
}

func toMessage(m message) *mirror.Message {
	out := &mirror.Message{ID: m.ID}
	for _, e := range m.Embeds {
		out.Payloads = append(out.Payloads, fromEmbed(e))
	}
	return out
}

// parseColor converts "#rrggbb" to the integer form Discord expects.
// Invalid colors render as 0 (no color).
func parseColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
