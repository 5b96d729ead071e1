// Package discord implements the mirror messenger on top of a Discord
// webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bissquit/incident-mirror/internal/mirror"
	"github.com/bissquit/incident-mirror/internal/pkg/ctxlog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://discord.com/api/v10"
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 2.0
	defaultBurst     = 5
	maxRetryAfter    = 30 * time.Second
	maxResponseBytes = 1 << 20
)

// Config holds Discord webhook configuration.
type Config struct {
	BaseURL      string
	WebhookID    string
	WebhookToken string
	Username     string        // overrides the webhook's display name (optional)
	AvatarURL    string        // overrides the webhook's avatar (optional)
	Timeout      time.Duration // per request
	RateLimit    float64       // requests per second
	Burst        int
}

// Client talks to a single Discord webhook.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ mirror.Messenger = (*Client)(nil)

// NewClient creates a new webhook client.
func NewClient(config Config) (*Client, error) {
	if config.WebhookID == "" || config.WebhookToken == "" {
		return nil, errors.New("discord client: webhook id and token are required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
	}, nil
}

// Send posts a new message and returns its id.
func (c *Client) Send(ctx context.Context, payload mirror.Payload) (string, error) {
	body := webhookMessage{
		Username:        c.config.Username,
		AvatarURL:       c.config.AvatarURL,
		Embeds:          []embed{toEmbed(payload)},
		AllowedMentions: &allowedMentions{Parse: []string{}},
	}

	var msg message
	// wait=true makes Discord return the created message.
	if err := c.do(ctx, "send", http.MethodPost, c.webhookPath()+"?wait=true", body, &msg); err != nil {
		return "", err
	}
	if msg.ID == "" {
		return "", &APIError{Op: "send", Message: "response carries no message id"}
	}

	ctxlog.FromContext(ctx).Debug("discord message sent", "message_id", msg.ID)
	return msg.ID, nil
}

// Fetch reads a message previously sent through the webhook.
func (c *Client) Fetch(ctx context.Context, messageID string) (*mirror.Message, error) {
	var msg message
	if err := c.do(ctx, "fetch", http.MethodGet, c.messagePath(messageID), nil, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, nil
	}
	return toMessage(msg), nil
}

// Edit replaces the embeds of an existing message.
func (c *Client) Edit(ctx context.Context, messageID string, payload mirror.Payload) error {
	body := webhookMessage{
		Embeds: []embed{toEmbed(payload)},
	}
	return c.do(ctx, "edit", http.MethodPatch, c.messagePath(messageID), body, nil)
}

func (c *Client) webhookPath() string {
	return fmt.Sprintf("/webhooks/%s/%s", url.PathEscape(c.config.WebhookID), url.PathEscape(c.config.WebhookToken))
}

func (c *Client) messagePath(messageID string) string {
	return c.webhookPath() + "/messages/" + url.PathEscape(messageID)
}

// do performs one API call. A 429 is retried once after the delay Discord
// asks for.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
	}

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Op: op, Message: fmt.Sprintf("wait for rate limiter: %v", err), Err: err}
		}

		status, respBody, header, err := c.roundTrip(ctx, op, method, path, body)
		if err != nil {
			return err
		}

		if status >= 200 && status < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return &APIError{Op: op, Status: status, Message: fmt.Sprintf("decode response: %v", err)}
			}
			return nil
		}

		apiErr := newAPIError(op, status, respBody)
		if status == http.StatusTooManyRequests && attempt == 1 {
			delay := retryAfter(header, respBody)
			ctxlog.FromContext(ctx).Warn("discord rate limited, retrying", "operation", op, "retry_after", delay)
			if !sleep(ctx, delay) {
				apiErr.Err = ctx.Err()
				return apiErr
			}
			continue
		}
		return apiErr
	}
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body []byte) (int, []byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "incident-mirror (https://github.com/bissquit/incident-mirror)")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordRequest(op, 0, time.Since(start))
		return 0, nil, nil, &APIError{Op: op, Message: fmt.Sprintf("send request: %v", err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	recordRequest(op, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, nil, &APIError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err), Err: err}
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

type errorBody struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"`
}

func newAPIError(op string, status int, body []byte) *APIError {
	apiErr := &APIError{Op: op, Status: status, Message: http.StatusText(status)}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		apiErr.Message = eb.Message
		apiErr.Code = eb.Code
	}
	return apiErr
}

// retryAfter reads the delay from the JSON body, falling back to the
// Retry-After header, capped at maxRetryAfter.
func retryAfter(header http.Header, body []byte) time.Duration {
	var delay time.Duration

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.RetryAfter > 0 {
		delay = time.Duration(eb.RetryAfter * float64(time.Second))
	} else if secs, err := strconv.ParseFloat(header.Get("Retry-After"), 64); err == nil && secs > 0 {
		delay = time.Duration(secs * float64(time.Second))
	} else {
		delay = time.Second
	}

	return min(delay, maxRetryAfter)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
