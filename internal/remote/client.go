// Package remote provides the HTTP client for the hosted backend's REST
// surface. The sync manager replays queued mutations through it; the
// connectivity watcher uses its health probe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/mwangivic/soma/internal/errors"
)

// Resource paths on the hosted backend.
const (
	resourceMessages       = "messages"
	resourceLessonProgress = "lesson_progress"
	resourceComments       = "comments"
)

// Config holds remote backend connection settings.
type Config struct {
	// BaseURL is the backend root, e.g. https://project.example.co
	BaseURL string
	// APIKey is sent as both the apikey header and a bearer token.
	APIKey string
}

// Client talks to the hosted backend REST API.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a Client with a 30 second request timeout.
func NewClient(config *Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// InsertMessage inserts a queued message payload into the messages resource.
func (c *Client) InsertMessage(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, resourceMessages, payload)
}

// UpsertLessonProgress upserts a lesson progress payload, keyed by the
// payload's identity columns (user_id, lesson_id).
func (c *Client) UpsertLessonProgress(ctx context.Context, payload json.RawMessage) error {
	return c.upsert(ctx, resourceLessonProgress, payload, "user_id,lesson_id")
}

// InsertComment inserts a queued comment payload into the comments resource.
func (c *Client) InsertComment(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, resourceComments, payload)
}

// Ping checks backend reachability. A nil error means the backend answered.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "rest/v1/", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteUnreachable, "health probe failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.New(apperrors.ErrRemoteUnreachable,
			fmt.Sprintf("health probe returned status %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) insert(ctx context.Context, resource string, payload json.RawMessage) error {
	return c.write(ctx, resource, payload, nil)
}

func (c *Client) upsert(ctx context.Context, resource string, payload json.RawMessage, onConflict string) error {
	headers := map[string]string{"Prefer": "resolution=merge-duplicates"}
	resource = resource + "?on_conflict=" + onConflict
	return c.write(ctx, resource, payload, headers)
}

func (c *Client) write(ctx context.Context, resource string, payload json.RawMessage, headers map[string]string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "rest/v1/"+resource, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteUnreachable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.New(apperrors.ErrRemoteRejected,
			fmt.Sprintf("write to %s failed with status %d: %s", resource, resp.StatusCode, string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}

	if c.config.APIKey != "" {
		req.Header.Set("apikey", c.config.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return req, nil
}
