package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/incident-mirror/internal/domain"
)

// memoryStore implements Store for testing.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]string
	gets    int
	puts    int
	getErr  error
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, incidentID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return "", false, s.getErr
	}
	id, ok := s.entries[incidentID]
	return id, ok, nil
}

func (s *memoryStore) Put(_ context.Context, incidentID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.entries[incidentID] = messageID
	return nil
}

type sentMessage struct {
	id      string
	payload Payload
}

type editCall struct {
	messageID string
	payload   Payload
}

// fakeMessenger keeps messages in memory the way a webhook would.
type fakeMessenger struct {
	mu       sync.Mutex
	seq      int
	messages map[string]*Message

	sends   []sentMessage
	edits   []editCall
	fetches []string

	sendErr  error
	fetchErr error
	editErr  error
	// emptyFetch makes Fetch succeed with no message.
	emptyFetch bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{messages: make(map[string]*Message)}
}

func (m *fakeMessenger) Send(_ context.Context, payload Payload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.seq++
	id := fmt.Sprintf("msg-%d", m.seq)
	m.messages[id] = &Message{ID: id, Payloads: []Payload{payload}}
	m.sends = append(m.sends, sentMessage{id: id, payload: payload})
	return id, nil
}

func (m *fakeMessenger) Fetch(_ context.Context, messageID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, messageID)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.emptyFetch {
		return nil, nil
	}
	msg, ok := m.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", messageID, ErrMessageNotFound)
	}
	return msg, nil
}

func (m *fakeMessenger) Edit(_ context.Context, messageID string, payload Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	msg, ok := m.messages[messageID]
	if !ok {
		return fmt.Errorf("edit %s: %w", messageID, ErrMessageNotFound)
	}
	msg.Payloads = []Payload{payload}
	m.edits = append(m.edits, editCall{messageID: messageID, payload: payload})
	return nil
}

// deleteMessage simulates a message removed outside the mirror.
func (m *fakeMessenger) deleteMessage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, id)
}

func (m *fakeMessenger) calls() (sends, edits, fetches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends), len(m.edits), len(m.fetches)
}

// fakeFeed returns a fixed snapshot.
type fakeFeed struct {
	incidents []domain.Incident
	err       error
	calls     int
}

func (f *fakeFeed) FetchIncidents(_ context.Context) ([]domain.Incident, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.incidents, nil
}

// fakeLocker records lock usage.
type fakeLocker struct {
	held     bool
	lockErr  error
	unlocked int
	attempts int
}

func (l *fakeLocker) TryLock(_ context.Context) (bool, error) {
	l.attempts++
	if l.lockErr != nil {
		return false, l.lockErr
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context) error {
	l.held = false
	l.unlocked++
	return nil
}

// leaseLocker is a fakeLocker whose hold must be extended.
type leaseLocker struct {
	fakeLocker
	extends   int
	extendErr error
}

func (l *leaseLocker) Extend(_ context.Context) error {
	l.extends++
	return l.extendErr
}

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func fixedClock(r *Reconciler, now time.Time) {
	r.now = func() time.Time { return now }
}

func newTestIncident(id string, status domain.IncidentStatus, updatedAt time.Time) domain.Incident {
	return domain.Incident{
		ID:        id,
		Name:      "Elevated API errors",
		Status:    status,
		Impact:    "major",
		Shortlink: "https://stspg.io/" + id,
		UpdatedAt: updatedAt,
		Components: []domain.Component{
			{ID: "c1", Name: "API"},
			{ID: "c2", Name: "Voice"},
		},
		Updates: []domain.IncidentUpdate{
			{ID: "u2", Status: status, Body: "Latest update.", CreatedAt: updatedAt},
			{ID: "u1", Status: domain.IncidentStatusInvestigating, Body: "We are investigating.", CreatedAt: updatedAt.Add(-time.Hour)},
		},
	}
}
