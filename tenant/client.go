package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// AuthTokenEnv is the environment variable holding the tenant API bearer
// token. The token is never read from files or flags.
const AuthTokenEnv = "NPA_API_TOKEN"

const defaultMaxRetries = 5

// Config configures the tenant API client.
type Config struct {
	// BaseURL is the tenant API root, e.g. https://tenant.example.com/api/v2.
	BaseURL string

	// AuthToken is the bearer token. Use TokenFromEnv to source it.
	AuthToken string

	// HTTPClient overrides the default HTTP client (mainly for tests).
	HTTPClient *http.Client

	// MaxRetries bounds retries of throttled requests. Zero means the default.
	MaxRetries uint64

	Log *slog.Logger
}

// TokenFromEnv reads the tenant API token from the environment.
func TokenFromEnv() (string, error) {
	token := os.Getenv(AuthTokenEnv)
	if token == "" {
		return "", fmt.Errorf("%s is not set", AuthTokenEnv)
	}
	return token, nil
}

// Client talks to the SaaS publisher-management API. Throttled requests are
// retried with exponential backoff; all other failures surface immediately
// with the response body attached for diagnosis.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	maxRetries uint64
	log        *slog.Logger
}

// NewClient creates a tenant API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("tenant base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid tenant base URL: %w", err)
	}
	if cfg.AuthToken == "" {
		return nil, errors.New("tenant auth token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		httpClient: httpClient,
		maxRetries: maxRetries,
		log:        log,
	}, nil
}

// CreatePublisher registers a new publisher identity under the given name.
func (c *Client) CreatePublisher(ctx context.Context, name string) (*interfaces.PublisherIdentity, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}

	var identity interfaces.PublisherIdentity
	err = c.do(ctx, http.MethodPost, "/publishers", body, &identity)
	if err != nil {
		return nil, fmt.Errorf("create publisher %q: %w", name, err)
	}

	c.log.Info("Created publisher identity",
		slog.String("name", name),
		slog.String("publisher_id", identity.PublisherID))
	return &identity, nil
}

// GetPublisher fetches the identity record including its connection status.
func (c *Client) GetPublisher(ctx context.Context, publisherID string) (*interfaces.PublisherIdentity, error) {
	var identity interfaces.PublisherIdentity
	err := c.do(ctx, http.MethodGet, "/publishers/"+url.PathEscape(publisherID), nil, &identity)
	if err != nil {
		return nil, fmt.Errorf("get publisher %s: %w", publisherID, err)
	}
	return &identity, nil
}

// IssueToken issues a one-time registration token for the identity.
func (c *Client) IssueToken(ctx context.Context, publisherID string) (*interfaces.RegistrationToken, error) {
	var token interfaces.RegistrationToken
	err := c.do(ctx, http.MethodPost, "/publishers/"+url.PathEscape(publisherID)+"/token", nil, &token)
	if err != nil {
		return nil, fmt.Errorf("issue token for publisher %s: %w", publisherID, err)
	}
	if token.PublisherID == "" {
		token.PublisherID = publisherID
	}

	c.log.Info("Issued registration token", slog.String("publisher_id", publisherID))
	return &token, nil
}

// DeletePublisher removes the identity. Deleting an already-deleted identity
// succeeds silently; a live connection surfaces as ErrConflict.
func (c *Client) DeletePublisher(ctx context.Context, publisherID string) error {
	err := c.do(ctx, http.MethodDelete, "/publishers/"+url.PathEscape(publisherID), nil, nil)
	if errors.Is(err, interfaces.ErrNotFound) {
		c.log.Debug("Publisher already deleted", slog.String("publisher_id", publisherID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete publisher %s: %w", publisherID, err)
	}

	c.log.Info("Deleted publisher identity", slog.String("publisher_id", publisherID))
	return nil
}

// do runs one API call, retrying throttled requests with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network blips are transient.
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			c.log.Debug("Tenant API throttled request",
				slog.String("method", method),
				slog.String("path", path))
			return fmt.Errorf("%w: %s %s", interfaces.ErrRateLimited, method, path)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(c.statusError(resp))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("could not parse tenant response: %w", err))
			}
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, bo)
}

// statusError maps a non-2xx response to the shared error taxonomy, keeping
// the response body so the operator can diagnose without replaying the call.
func (c *Client) statusError(resp *http.Response) error {
	bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	detail := strings.TrimSpace(string(bodyBytes))
	if readErr != nil || detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	var base error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		base = interfaces.ErrAuthFailed
	case http.StatusNotFound:
		base = interfaces.ErrNotFound
	case http.StatusConflict:
		base = interfaces.ErrConflict
		// Only the create endpoint rejects on name collision; a 409 from the
		// token or delete endpoints means a live-connection conflict.
		if resp.Request != nil && resp.Request.Method == http.MethodPost &&
			strings.HasSuffix(resp.Request.URL.Path, "/publishers") {
			base = interfaces.ErrDuplicateName
		}
	default:
		return fmt.Errorf("tenant API returned %d: %s", resp.StatusCode, detail)
	}
	return fmt.Errorf("%w: %s", base, detail)
}
