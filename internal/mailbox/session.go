package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	DefaultPollAttempts = 30
	DefaultPollInterval = 5 * time.Second
)

// Session is an authenticated mailbox. It is created by Client.CreateAccount
// and safe for use by one attempt at a time.
type Session struct {
	client   *Client
	address  string
	password string
	account  Account

	mu        sync.RWMutex
	token     string
	tokenID   string
	expiresAt time.Time
}

// Address is the mailbox's email address.
func (s *Session) Address() string { return s.address }

// Account is the provider record for the mailbox.
func (s *Session) Account() Account { return s.account }

// AccountID prefers the id carried in the token claims and falls back to the
// account record.
func (s *Session) AccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokenID != "" {
		return s.tokenID
	}
	return s.account.ID
}

// ExpiresAt reports the token expiry, when the token carries one.
func (s *Session) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt, !s.expiresAt.IsZero()
}

func (s *Session) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// setToken stores a token along with whatever claims can be read from it. The
// signature is not checked; the claims are only informational.
func (s *Session) setToken(token string) {
	claims := jwt.MapClaims{}
	var id string
	var exp time.Time
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if v, ok := claims["id"].(string); ok {
			id = v
		}
		if nd, err := claims.GetExpirationTime(); err == nil && nd != nil {
			exp = nd.Time
		}
	}

	s.mu.Lock()
	s.token = token
	s.tokenID = id
	s.expiresAt = exp
	s.mu.Unlock()
}

func (s *Session) refreshToken(ctx context.Context) error {
	token, err := s.client.issueToken(ctx, s.address, s.password)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	s.setToken(token)
	s.client.logger.Debug("Mailbox token refreshed", zap.String("address", s.address))
	return nil
}

// authorized runs an authenticated request, refreshing the token once when the
// provider rejects it as expired.
func (s *Session) authorized(ctx context.Context, method, path string, out interface{}) error {
	if s == nil || s.client == nil {
		return ErrNotAuthenticated
	}
	token := s.currentToken()
	if token == "" {
		return ErrNotAuthenticated
	}

	err := s.client.do(ctx, method, path, token, nil, out)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		if rerr := s.refreshToken(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		return s.client.do(ctx, method, path, s.currentToken(), nil, out)
	}
	return err
}

// ListMessages returns the current inbox listing in provider order.
func (s *Session) ListMessages(ctx context.Context) ([]Message, error) {
	var raw json.RawMessage
	if err := s.authorized(ctx, http.MethodGet, "/messages", &raw); err != nil {
		return nil, err
	}
	var messages []Message
	if err := s.client.decodeCollection(raw, &messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	return messages, nil
}

// CheckInbox polls the inbox up to maxAttempts times, waiting delay between
// attempts, and returns as soon as a listing is non-empty. Listing failures are
// logged and the next attempt proceeds. When every attempt comes back empty the
// result is an empty slice and a nil error. Only a usage error or context
// cancellation is returned as an error.
func (s *Session) CheckInbox(ctx context.Context, maxAttempts int, delay time.Duration) ([]Message, error) {
	if s == nil || s.currentToken() == "" {
		return nil, ErrNotAuthenticated
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}
	logger := s.client.logger.With(zap.String("address", s.address))

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		messages, err := s.ListMessages(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Inbox check failed", zap.Int("attempt", attempt), zap.Error(err))
		case len(messages) > 0:
			logger.Info("Inbox has messages", zap.Int("attempt", attempt), zap.Int("count", len(messages)))
			return messages, nil
		default:
			logger.Debug("Inbox empty", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))
		}

		if attempt < maxAttempts {
			if err := s.client.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	logger.Warn("No messages arrived before polling gave up", zap.Int("attempts", maxAttempts))
	return []Message{}, nil
}

// GetMessageDetails fetches the full message as raw JSON. Errors are returned
// to the caller unchanged apart from identifying the message.
func (s *Session) GetMessageDetails(ctx context.Context, id string) ([]byte, error) {
	var raw json.RawMessage
	if err := s.authorized(ctx, http.MethodGet, "/messages/"+url.PathEscape(id), &raw); err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return []byte(raw), nil
}
