// Package github adapts the GitHub Issues API to the domain model. It is
// the only package that talks to GitHub; bodies pass through the
// metadata codec on every write so priority/iteration survive updates.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/devpilot-kr/devpilot/internal/apperr"
)

// callTimeout bounds every GitHub round-trip.
const callTimeout = 15 * time.Second

// Client wraps the GitHub REST API for one access token.
type Client struct {
	api    *github.Client
	logger *slog.Logger
}

// New creates a client authenticated with the given token.
func New(token string, logger *slog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: github.NewClient(tc), logger: logger}
}

// NewWithBaseURL creates a client against a non-default API endpoint.
// Tests point this at an httptest server.
func NewWithBaseURL(token, baseURL string, logger *slog.Logger) (*Client, error) {
	c := New(token, logger)
	api, err := c.api.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("set github base url: %w", err)
	}
	c.api = api
	return c, nil
}

// splitRepo splits "owner/repo" into its parts.
func splitRepo(fullname string) (owner, repo string, err error) {
	parts := strings.SplitN(fullname, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperr.New(apperr.KindInvalidRequest, http.StatusBadRequest, "invalid repository name %q", fullname)
	}
	return parts[0], parts[1], nil
}

// apiError converts a go-github error into a domain error carrying the
// upstream status and message.
func apiError(err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return apperr.GitHubAPI(ghErr.Response.StatusCode, ghErr.Message)
	}
	return fmt.Errorf("github request: %w", err)
}

// transient reports whether an error is worth one retry: a 5xx from
// GitHub or a network-level failure before any response arrived.
func transient(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		return ghErr.Response != nil && ghErr.Response.StatusCode >= 500
	}
	// No structured response: connection reset, timeout, DNS.
	return !errors.Is(err, context.Canceled)
}

// withRetry runs fn under the call timeout, retrying exactly once on a
// transient failure. The adapter imposes no further retry policy.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	run := func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return fn(callCtx)
	}

	err := run()
	if err == nil || !transient(err) {
		return err
	}
	c.logger.Warn("retrying github call after transient failure", "op", op, "error", err)
	return run()
}
