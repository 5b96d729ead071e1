// Package feed fetches incidents from a statuspage.io v2 API.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-mirror/internal/domain"
	"github.com/bissquit/incident-mirror/internal/mirror"
	"github.com/bissquit/incident-mirror/internal/pkg/ctxlog"
)

const (
	defaultBaseURL   = "https://discordstatus.com"
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "incident-mirror (https://github.com/bissquit/incident-mirror)"
	incidentsPath    = "/api/v2/incidents.json"
	maxResponseBytes = 8 << 20
)

// Config holds feed client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client reads the incidents endpoint of a status page.
type Client struct {
	config     Config
	httpClient *http.Client
}

var _ mirror.Feed = (*Client)(nil)

// NewClient creates a new feed client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// URL returns the endpoint the client polls.
func (c *Client) URL() string {
	return c.config.BaseURL + incidentsPath
}

// FetchIncidents returns the incidents in the order the page delivers them.
func (c *Client) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var page incidentsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	incidents := make([]domain.Incident, 0, len(page.Incidents))
	for _, in := range page.Incidents {
		if in.ID == "" {
			logger.Warn("feed incident without id skipped", "name", in.Name)
			continue
		}
		incidents = append(incidents, in.toDomain())
	}

	logger.Debug("feed fetched", "url", c.URL(), "incidents", len(incidents))
	return incidents, nil
}

// StatusError is a non-200 response from the status page.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("statuspage returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("statuspage returned status %d: %s", e.StatusCode, e.Body)
}
