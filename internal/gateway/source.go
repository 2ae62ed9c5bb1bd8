package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrSourceUnavailable indicates the identity service could not be reached
// within the retry budget. It is deliberately distinct from an empty
// permission set; callers must fail closed.
var ErrSourceUnavailable = errors.New("gateway: permissions source unavailable")

// ErrUserUnknown indicates the identity service does not know the user.
var ErrUserUnknown = errors.New("gateway: unknown user")

// Source computes a user's permissions from the identity service.
type Source interface {
	Fetch(ctx context.Context, userID string) (ResolvedPermissions, error)
}

// SourceConfig tunes the outbound lookup.
type SourceConfig struct {
	BaseURL  string
	Timeout  time.Duration // per attempt
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

// HTTPSource calls the identity service's lookup API with a bounded timeout,
// bounded retries with backoff and a circuit breaker in front.
type HTTPSource struct {
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	breaker  *gobreaker.CircuitBreaker[ResolvedPermissions]
	logger   *slog.Logger
}

// NewHTTPSource constructs a source. Zero config fields fall back to
// conservative defaults.
func NewHTTPSource(cfg SourceConfig) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	breaker := gobreaker.NewCircuitBreaker[ResolvedPermissions](gobreaker.Settings{
		Name:    "identity-lookup",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPSource{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{},
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		breaker:  breaker,
		logger:   cfg.Logger,
	}
}

// Fetch resolves the user's roles and permissions. Exhausted retries and an
// open breaker both surface as ErrSourceUnavailable.
func (s *HTTPSource) Fetch(ctx context.Context, userID string) (ResolvedPermissions, error) {
	resolved, err := s.breaker.Execute(func() (ResolvedPermissions, error) {
		return s.fetchWithRetry(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ResolvedPermissions{}, fmt.Errorf("%w: circuit open", ErrSourceUnavailable)
		}
		return ResolvedPermissions{}, err
	}
	return resolved, nil
}

func (s *HTTPSource) fetchWithRetry(ctx context.Context, userID string) (ResolvedPermissions, error) {
	endpoint := fmt.Sprintf("%s/internal/users/%s/permissions", s.baseURL, url.PathEscape(userID))

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ResolvedPermissions{}, ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt-1)):
			}
		}

		resolved, retryable, err := s.fetchOnce(ctx, endpoint)
		if err == nil {
			return resolved, nil
		}
		if !retryable {
			return ResolvedPermissions{}, err
		}
		lastErr = err
		if s.logger != nil {
			s.logger.Warn("identity lookup attempt failed",
				slog.String("user", userID), slog.Int("attempt", attempt), slog.Any("error", err))
		}
	}
	return ResolvedPermissions{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, lastErr)
}

// fetchOnce performs a single attempt. The bool reports whether the failure
// is worth retrying.
func (s *HTTPSource) fetchOnce(ctx context.Context, endpoint string) (ResolvedPermissions, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ResolvedPermissions{}, false, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller cancellation is not a transport failure.
			return ResolvedPermissions{}, false, ctx.Err()
		}
		return ResolvedPermissions{}, true, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		var resolved ResolvedPermissions
		if err := json.NewDecoder(res.Body).Decode(&resolved); err != nil {
			return ResolvedPermissions{}, true, fmt.Errorf("gateway: decode lookup response: %w", err)
		}
		return resolved, false, nil
	case res.StatusCode == http.StatusNotFound:
		return ResolvedPermissions{}, false, ErrUserUnknown
	case res.StatusCode >= 500:
		return ResolvedPermissions{}, true, fmt.Errorf("gateway: identity service returned %d", res.StatusCode)
	default:
		return ResolvedPermissions{}, false, fmt.Errorf("gateway: identity service returned %d", res.StatusCode)
	}
}

var _ Source = (*HTTPSource)(nil)
