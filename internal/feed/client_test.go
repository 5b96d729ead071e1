package feed

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/incident-mirror/internal/domain"
	"github.com/bissquit/incident-mirror/internal/pkg/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `{
  "page": {"id": "srhpyqt94yxb", "name": "Discord"},
  "incidents": [
    {
      "id": "abc123",
      "name": "Elevated API errors",
      "status": "monitoring",
      "impact": "major",
      "shortlink": "https://stspg.io/abc123",
      "created_at": "2026-10-14T09:00:00.000-07:00",
      "updated_at": "2026-10-14T10:30:00.149-07:00",
      "components": [
        {"id": "c1", "name": "API"},
        {"id": "c2", "name": "Voice"}
      ],
      "incident_updates": [
        {"id": "u2", "status": "monitoring", "body": "A fix has been deployed.", "created_at": "2026-10-14T10:30:00.149-07:00"},
        {"id": "u1", "status": "investigating", "body": "We are investigating.", "created_at": "2026-10-14T09:00:00.000-07:00"}
      ]
    },
    {
      "id": "def456",
      "name": "Scheduled maintenance",
      "status": "resolved",
      "impact": "none",
      "shortlink": "https://stspg.io/def456",
      "created_at": "2026-10-01T00:00:00Z",
      "updated_at": null,
      "components": [],
      "incident_updates": []
    },
    {
      "id": "",
      "name": "broken entry",
      "created_at": "2026-10-01T00:00:00Z"
    }
  ]
}`

func TestClient_FetchIncidents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v2/incidents.json", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", UserAgent: "test-agent"})

	incidents, err := client.FetchIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 2, "entries without id are dropped")

	first := incidents[0]
	assert.Equal(t, "abc123", first.ID)
	assert.Equal(t, "Elevated API errors", first.Name)
	assert.Equal(t, domain.IncidentStatusMonitoring, first.Status)
	assert.Equal(t, "major", first.Impact)
	assert.Equal(t, "https://stspg.io/abc123", first.Shortlink)
	assert.True(t, first.UpdatedAt.Equal(time.Date(2026, 10, 14, 17, 30, 0, 149_000_000, time.UTC)))
	assert.Equal(t, []string{"API", "Voice"}, first.ComponentNames())
	require.Len(t, first.Updates, 2)
	assert.Equal(t, "u2", first.Updates[0].ID, "delivered order is preserved")
	assert.Equal(t, domain.IncidentStatusInvestigating, first.Updates[1].Status)

	second := incidents[1]
	assert.Equal(t, "def456", second.ID)
	assert.True(t, second.UpdatedAt.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)),
		"null updated_at falls back to created_at")
	assert.Empty(t, second.Components)
	assert.Empty(t, second.Updates)
}

func TestClient_FetchIncidents_LogsWithContextLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := ctxlog.With(ctxlog.WithLogger(context.Background(), logger), "pass", "test")

	_, err := NewClient(Config{BaseURL: server.URL}).FetchIncidents(ctx)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"msg":"feed incident without id skipped"`)
	assert.Contains(t, buf.String(), `"pass":"test"`)
}

func TestClient_FetchIncidents_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"incidents": []}`))
	}))
	defer server.Close()

	incidents, err := NewClient(Config{BaseURL: server.URL}).FetchIncidents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, incidents)
}

func TestClient_FetchIncidents_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusServiceUnavailable, "upstream down", "status 503: upstream down"},
		{"not found", http.StatusNotFound, "", "status 404"},
		{"bad json", http.StatusOK, `{"incidents": [`, "decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(Config{BaseURL: server.URL}).FetchIncidents(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_FetchIncidents_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}).FetchIncidents(context.Background())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestClient_FetchIncidents_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"incidents": []}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(Config{BaseURL: server.URL}).FetchIncidents(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{})

	assert.Equal(t, "https://discordstatus.com/api/v2/incidents.json", client.URL())
	assert.Equal(t, defaultTimeout, client.config.Timeout)
	assert.Equal(t, defaultUserAgent, client.config.UserAgent)
}
