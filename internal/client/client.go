// Package client talks to a running autoreg service.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/fallback"
	"github.com/xkilldash9x/autoreg-cli/internal/provision"
)

const probeTimeout = 10 * time.Second

// Client calls the service's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Client. A trailing slash on baseURL is ignored.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("client"),
	}
}

// NewFromConfig creates a Client from the remote configuration section.
func NewFromConfig(cfg config.RemoteConfig, logger *zap.Logger) *Client {
	return New(cfg.BaseURL, cfg.Timeout, logger)
}

// BaseURL is the service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// CheckStatus reports whether the service is up. It asks /api/status first
// and falls back to /api/healthcheck; any failure along the way reads as offline.
func (c *Client) CheckStatus(ctx context.Context) bool {
	probes := []fallback.Strategy[string]{
		c.probe("/api/status", "status", "online"),
		c.probe("/api/healthcheck", "status", "ok"),
	}
	out, err := fallback.First(ctx, probes)
	if err != nil || !out.Matched() {
		return false
	}
	c.logger.Debug("Service is up", zap.String("probe", out.Name))
	return true
}

// probe matches when path answers 2xx with body[key] == want. Transport and
// decode problems count as a miss so the next probe still runs.
func (c *Client) probe(path, key, want string) fallback.Strategy[string] {
	return fallback.Strategy[string]{
		Name: path,
		Try: func(ctx context.Context) (string, bool, error) {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			var body map[string]interface{}
			if err := c.getJSON(probeCtx, path, &body); err != nil {
				c.logger.Debug("Status probe failed", zap.String("path", path), zap.Error(err))
				return "", false, nil
			}
			got, _ := body[key].(string)
			return got, got == want, nil
		},
	}
}

// TestCORS calls /api/cors-test and reports whether it answered success.
func (c *Client) TestCORS(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var body struct {
		Success bool `json:"success"`
	}
	if err := c.getJSON(probeCtx, "/api/cors-test", &body); err != nil {
		c.logger.Debug("CORS probe failed", zap.Error(err))
		return false
	}
	return body.Success
}

// CreateAccount asks the service for one provisioning attempt. Every problem,
// including transport errors and non-2xx replies, comes back as a failed
// Result rather than an error.
func (c *Client) CreateAccount(ctx context.Context) provision.Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/create-account", nil)
	if err != nil {
		return provision.Failed(err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provision.Failed(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return provision.Failed(fmt.Sprintf("reading response: %v", err))
	}

	var res provision.Result
	decodeErr := json.Unmarshal(data, &res)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && res.Error != "" {
			return provision.Failed(res.Error)
		}
		return provision.Failed(fmt.Sprintf("request failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	if decodeErr != nil {
		return provision.Failed(fmt.Sprintf("malformed response: %v", decodeErr))
	}
	if !res.Success || res.AccountInfo == nil {
		msg := res.Error
		if msg == "" {
			msg = "account creation failed"
		}
		failed := provision.Failed(msg)
		failed.AttemptID = res.AttemptID
		failed.Warnings = res.Warnings
		return failed
	}
	return res
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
