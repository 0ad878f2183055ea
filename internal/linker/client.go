package linker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/redis"
	"github.com/yourorg/botfleet/internal/observability/metrics"
	"github.com/yourorg/botfleet/internal/reliability/circuitbreaker"
	"github.com/yourorg/botfleet/internal/reliability/retry"
	"github.com/yourorg/botfleet/pkg/cache"
)

const (
	tokenCacheTTL    = time.Minute
	identityCacheTTL = 10 * time.Minute
)

var errCircuitOpen = errors.New("account service temporarily unavailable (circuit breaker open)")

// Client implements domain.AccountLinker against the external friend
// service's HTTP API. Every call runs under its own deadline so one slow
// external call cannot pin a request handler; repeated failures trip a
// circuit breaker. Session tokens and resolved identities are cached,
// relationship mutations never are.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	callTimeout time.Duration
	logger      *slog.Logger
	breaker     *circuitbreaker.CircuitBreaker
	retryConfig *retry.Config
	tokens      *cache.Cache
	identities  *cache.Cache
	redis       *redis.Client // optional shared identity cache
}

// New creates a linker client. redisClient may be nil; identity caching then
// stays in-process.
func New(baseURL string, callTimeout time.Duration, redisClient *redis.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	cb.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("account service circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{},
		callTimeout: callTimeout,
		logger:      logger,
		breaker:     cb,
		retryConfig: retry.DefaultConfig(),
		tokens:      cache.New(),
		identities:  cache.New(),
		redis:       redisClient,
	}
}

type tokenResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

type relationshipResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type identityResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Name    string `json:"name"`
	Region  string `json:"region"`
	Level   string `json:"level"`
}

// Authenticate obtains a session token for a bot account. Tokens are cached
// briefly per account to spare the external service during bulk operations.
func (c *Client) Authenticate(ctx context.Context, accountUID, credential string) (string, error) {
	if tok, ok := c.tokens.Get("token:" + accountUID); ok {
		return tok.(string), nil
	}

	var resp tokenResponse
	err := c.call(ctx, "Authenticate", http.MethodPost, "/token", map[string]string{
		"uid":      accountUID,
		"password": credential,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Status != "success" || resp.Token == "" {
		return "", errors.New(failureMessage(resp.Message, "authentication failed"))
	}

	c.tokens.Set("token:"+accountUID, resp.Token, tokenCacheTTL)
	return resp.Token, nil
}

// EstablishRelationship asks the external system to friend targetUID.
// The verdict and message come back verbatim; err is non-nil only when the
// call itself did not complete.
func (c *Client) EstablishRelationship(ctx context.Context, token, targetUID string) (bool, string, error) {
	var resp relationshipResponse
	err := c.call(ctx, "EstablishRelationship", http.MethodPost, "/friends/add", map[string]string{
		"token":  token,
		"target": targetUID,
	}, &resp)
	if err != nil {
		return false, "", err
	}
	return resp.Status == "success", resp.Message, nil
}

// DissolveRelationship asks the external system to unfriend targetUID
func (c *Client) DissolveRelationship(ctx context.Context, token, targetUID string) (bool, string, error) {
	var resp relationshipResponse
	err := c.call(ctx, "DissolveRelationship", http.MethodPost, "/friends/remove", map[string]string{
		"token":  token,
		"target": targetUID,
	}, &resp)
	if err != nil {
		return false, "", err
	}
	return resp.Status == "success", resp.Message, nil
}

// ResolveIdentity looks up a player's display attributes. Lookups are
// read-only, so they are retried with backoff and cached.
func (c *Client) ResolveIdentity(ctx context.Context, targetUID string) (domain.Identity, error) {
	key := "identity:" + targetUID
	if c.redis != nil {
		if data, err := c.redis.Get(ctx, key); err == nil {
			var id domain.Identity
			if json.Unmarshal([]byte(data), &id) == nil {
				return id, nil
			}
		}
	}
	if cached, ok := c.identities.Get(key); ok {
		return cached.(domain.Identity), nil
	}

	resp, err := retry.Do(ctx, c.retryConfig, c.logger, "ResolveIdentity", func(ctx context.Context) (identityResponse, error) {
		var r identityResponse
		if err := c.call(ctx, "ResolveIdentity", http.MethodGet, "/players/"+targetUID, nil, &r); err != nil {
			return identityResponse{}, err
		}
		return r, nil
	})
	if err != nil {
		return domain.UnknownIdentity(), err
	}
	if resp.Status != "success" {
		return domain.UnknownIdentity(), errors.New(failureMessage(resp.Message, "identity lookup failed"))
	}

	id := domain.Identity{Name: resp.Name, Region: resp.Region, Level: resp.Level}
	if id.Name == "" {
		id.Name = domain.UnknownName
	}

	c.identities.Set(key, id, identityCacheTTL)
	if c.redis != nil {
		if data, err := json.Marshal(id); err == nil {
			if err := c.redis.Set(ctx, key, string(data), identityCacheTTL); err != nil {
				c.logger.Debug("identity cache write failed", slog.String("error", err.Error()))
			}
		}
	}
	return id, nil
}

// call performs one HTTP exchange under the per-call deadline and the
// circuit breaker.
func (c *Client) call(ctx context.Context, op, method, path string, body map[string]string, out any) error {
	if !c.breaker.AllowRequest() {
		return errCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveLinkerCall(op, time.Since(start))
	if err != nil {
		c.breaker.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("account service call timed out after %s", c.callTimeout)
		}
		return fmt.Errorf("account service unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("failed to read account service response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.breaker.RecordFailure()
		return fmt.Errorf("account service returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("malformed account service response: %w", err)
	}

	c.breaker.RecordSuccess()
	return nil
}

func failureMessage(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
