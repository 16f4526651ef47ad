// Package httpfetch implements ports.Fetcher over HTTP(S) against the
// well-known federation endpoints: an entity's configuration lives at
// {entity}/.well-known/openid-federation and a superior serves statements
// about its subordinates at {superior}/fetch?sub={subject}.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sufield/fedtrust/internal/domain"
)

// WellKnownPath is where an entity publishes its own configuration.
const WellKnownPath = "/.well-known/openid-federation"

// Defaults for fetch behavior.
const (
	DefaultFetchTimeout = 5 * time.Second
	DefaultMaxRetries   = 2
	maxStatementBytes   = 1 << 20
)

// Client fetches raw signed statements from federation endpoints. Transient
// failures (network errors, 5xx) are retried with exponential backoff a
// bounded number of times before being classified as unreachable; missing
// statements and signature-bearing responses are never retried.
type Client struct {
	http         *http.Client
	log          *zap.Logger
	fetchTimeout time.Duration
	maxRetries   uint64
}

// Option configures a Client.
type Option func(*Client)

// WithFetchTimeout bounds each individual fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) { c.fetchTimeout = d }
}

// WithMaxRetries bounds retries of transient failures per fetch.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithHTTPClient substitutes the underlying HTTP client; tests point it at
// httptest servers.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a fetch client.
func NewClient(log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		log:          log,
		fetchTimeout: DefaultFetchTimeout,
		maxRetries:   DefaultMaxRetries,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchEntityConfiguration fetches the entity's self-issued statement from
// its well-known endpoint.
func (c *Client) FetchEntityConfiguration(ctx context.Context, entity domain.EntityID) ([]byte, error) {
	return c.get(ctx, entity, entity.String()+WellKnownPath)
}

// FetchSubordinateStatement fetches the superior's statement about subject
// from the superior's fetch endpoint.
func (c *Client) FetchSubordinateStatement(ctx context.Context, superior, subject domain.EntityID) ([]byte, error) {
	endpoint := superior.String() + "/fetch?sub=" + url.QueryEscape(subject.String())
	return c.get(ctx, superior, endpoint)
}

func (c *Client) get(ctx context.Context, entity domain.EntityID, endpoint string) ([]byte, error) {
	operation := func() ([]byte, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("building request for %s: %w", endpoint, err))
		}
		req.Header.Set("Accept", "application/entity-statement+jwt")

		resp, err := c.http.Do(req)
		if err != nil {
			// Transient: retried by the surrounding backoff schedule.
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatementBytes))
			if err != nil {
				return nil, err
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrNotFound, endpoint))
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("endpoint %s answered %d", endpoint, resp.StatusCode)
		default:
			return nil, backoff.Permanent(fmt.Errorf("endpoint %s answered %d", endpoint, resp.StatusCode))
		}
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	body, err := backoff.RetryWithData(operation, schedule)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		c.log.Warn("fetch failed",
			zap.String("entity", entity.String()),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrUnreachableEntity, entity, err)
	}
	return body, nil
}
