package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"asset-orchestrator/api/rest/handlers"
	"asset-orchestrator/core/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the orchestrator HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL. A nil httpClient uses a 60s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Submit starts a reconstruction job and returns its command id.
func (c *Client) Submit(ctx context.Context, sourceArtifactURI string) (string, error) {
	var resp handlers.SubmitJobResponse
	err := c.do(ctx, http.MethodPost, "/v1/jobs", handlers.SubmitJobRequest{SourceArtifactURI: sourceArtifactURI}, &resp)
	return resp.CommandID, err
}

// Status polls a job once.
func (c *Client) Status(ctx context.Context, commandID, modelName string) (*handlers.JobStatusResponse, error) {
	var resp handlers.JobStatusResponse
	req := handlers.JobStatusRequest{CommandID: commandID, ModelName: modelName}
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/status", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForJob polls until the job and any follow-up stage finish, or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, commandID, modelName string, interval time.Duration, onPoll func(*handlers.JobStatusResponse)) (*handlers.JobStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		resp, err := c.Status(ctx, commandID, modelName)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(resp)
		}
		if Done(resp) {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Done reports whether polling can stop.
func Done(resp *handlers.JobStatusResponse) bool {
	if resp.Status != models.CommandSuccess {
		return resp.Status.Terminal()
	}
	if resp.SecondaryArtifactURI == "" || resp.SecondaryURL != "" {
		return true
	}
	return resp.SecondaryStatus.Terminal() && resp.SecondaryStatus != models.CommandSuccess
}

// Generate creates a product image from prompt.
func (c *Client) Generate(ctx context.Context, prompt, assetName string) (*handlers.GenerateImageResponse, error) {
	var resp handlers.GenerateImageResponse
	req := handlers.GenerateImageRequest{Prompt: prompt, AssetName: assetName}
	if err := c.do(ctx, http.MethodPost, "/v1/images", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAssets returns one page of the asset catalog.
func (c *Client) ListAssets(ctx context.Context, limit int, lastKey string) (*handlers.ListAssetsResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if lastKey != "" {
		q.Set("lastKey", lastKey)
	}
	path := "/v1/assets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp handlers.ListAssetsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
