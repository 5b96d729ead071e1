package mirror

import "time"

// Payload is the rendered, platform-agnostic form of an incident.
type Payload struct {
	Title       string
	URL         string
	Color       string // hex, e.g. "#06a51b"
	Description string
	// Footer carries the incident id so a message can be traced back to
	// its incident independently of the display text.
	Footer    string
	Timestamp time.Time
	Fields    []Field
}

// Field is one body section of a payload, one per incident update.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a message as read back from the messaging platform.
type Message struct {
	ID       string
	Payloads []Payload
}
