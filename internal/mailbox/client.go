// Package mailbox talks to a mail.tm compatible disposable mailbox provider.
//
// A Client holds provider configuration only. Calling CreateAccount is the only
// way to obtain a Session, so inbox and message operations are unreachable
// until a mailbox exists and a token has been issued.
package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/credentials"
)

const (
	DefaultBaseURL  = "https://api.mail.tm"
	DefaultItemsKey = "hydra:member"

	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	ItemsKey string
	Timeout  time.Duration
	// RateLimit in requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	// Transport overrides the underlying round tripper. Responses are always
	// passed through the decompression layer.
	Transport http.RoundTripper
}

// Client is an unauthenticated handle on the provider.
type Client struct {
	baseURL    string
	itemsKey   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	ids        *credentials.Generator
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from explicit options.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ItemsKey == "" {
		opts.ItemsKey = DefaultItemsKey
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		itemsKey: opts.ItemsKey,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newCompressionTransport(opts.Transport),
		},
		limiter: limiter,
		logger:  logger.Named("mailbox"),
		ids:     credentials.New(),
		sleep:   sleepContext,
	}
}

// NewClientFromConfig builds a Client from the mailbox configuration section.
func NewClientFromConfig(cfg config.MailboxConfig, logger *zap.Logger) *Client {
	return NewClient(Options{
		BaseURL:   cfg.BaseURL,
		ItemsKey:  cfg.ItemsKey,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, logger)
}

// CreateAccount provisions a fresh mailbox on the provider's first domain and
// authenticates it. Every failure is reported as a *CreationError; nothing is
// retried.
func (c *Client) CreateAccount(ctx context.Context) (*Session, error) {
	domain, err := c.firstDomain(ctx)
	if err != nil {
		return nil, &CreationError{Step: "domains", Err: err}
	}

	address := fmt.Sprintf("user%d%s@%s", c.ids.Intn(100000), credentials.LastDigits(c.ids.Now(), 4), domain)
	password := "pass" + c.ids.RandomBase36(8)
	creds := map[string]string{"address": address, "password": password}

	var account Account
	if err := c.do(ctx, http.MethodPost, "/accounts", "", creds, &account); err != nil {
		return nil, &CreationError{Step: "account", Err: err}
	}

	token, err := c.issueToken(ctx, address, password)
	if err != nil {
		return nil, &CreationError{Step: "token", Err: err}
	}

	s := &Session{
		client:   c,
		address:  address,
		password: password,
		account:  account,
	}
	s.setToken(token)

	c.logger.Info("Mailbox created", zap.String("address", address), zap.String("domain", domain))
	return s, nil
}

// Domains lists the provider's receiving domains in the order served.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/domains", "", nil, &raw); err != nil {
		return nil, err
	}
	var domains []Domain
	if err := c.decodeCollection(raw, &domains); err != nil {
		return nil, fmt.Errorf("decoding domains: %w", err)
	}
	return domains, nil
}

func (c *Client) firstDomain(ctx context.Context) (string, error) {
	domains, err := c.Domains(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range domains {
		if d.Domain != "" {
			return d.Domain, nil
		}
	}
	return "", ErrNoDomains
}

func (c *Client) issueToken(ctx context.Context, address, password string) (string, error) {
	var tok tokenResponse
	body := map[string]string{"address": address, "password": password}
	if err := c.do(ctx, http.MethodPost, "/token", "", body, &tok); err != nil {
		return "", err
	}
	if tok.Token == "" {
		return "", ErrEmptyToken
	}
	return tok.Token, nil
}

// decodeCollection accepts either a bare JSON array or an object carrying the
// array under the configured items key.
func (c *Client) decodeCollection(raw []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	items, ok := envelope[c.itemsKey]
	if !ok {
		return fmt.Errorf("response has no %q list", c.itemsKey)
	}
	return json.Unmarshal(items, out)
}

// do performs one rate-limited request and decodes a JSON response into out.
// A nil out discards the body.
func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/ld+json, application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: snippet}
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decoding response (%d bytes): %w", method, path, len(data), err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
