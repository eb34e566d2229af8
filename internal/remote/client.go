// Package remote issues rate-limited, token-gated calls against the
// GitHub API and classifies failures for the batch aggregator.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v55/github"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/NikkuNoShori/RepoMonitor/internal/auth"
	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
	"github.com/NikkuNoShori/RepoMonitor/internal/logging"
)

// Prometheus metrics for remote GitHub calls.
var (
	remoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomonitor_remote_requests_total",
		Help: "Total GitHub requests by result",
	}, []string{"result"})

	remoteRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repomonitor_remote_request_duration_seconds",
		Help:    "GitHub request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

// IssueCounter is the single-item contract consumed by the aggregator.
type IssueCounter interface {
	// OpenIssueCount returns the number of open issues for one repository.
	OpenIssueCount(ctx context.Context, item domain.WorkItem) (int, error)
}

type countEntry struct {
	count   int
	expires time.Time
}

// Client is a rate-limited GitHub client. Every call withdraws one token
// from the shared per-credential bucket before touching the network.
type Client struct {
	creds    auth.CredentialProvider
	limiters *LimiterRegistry
	cache    *lru.Cache[string, countEntry]
	cacheTTL time.Duration
	baseURL  string
	logger   zerolog.Logger

	// gh is rebuilt whenever the credential changes; ghToken remembers
	// which token it was built with.
	mu      sync.Mutex
	gh      *github.Client
	ghToken string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at an alternate API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithCountCache enables the per-repository count cache. A zero TTL
// disables caching.
func WithCountCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		if size <= 0 || ttl <= 0 {
			return
		}
		cache, err := lru.New[string, countEntry](size)
		if err != nil {
			return
		}
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// NewClient creates a new rate-limited GitHub client.
func NewClient(creds auth.CredentialProvider, limiters *LimiterRegistry, opts ...Option) *Client {
	c := &Client{
		creds:    creds,
		limiters: limiters,
		logger:   logging.NewLogger("remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenIssueCount returns the open issue count for one repository.
//
// The call acquires one token from the shared limiter first; acquisition
// suspends until a token is available or the context is cancelled. On a
// 401 the cached credential is cleared exactly once and an UNAUTHORIZED
// error propagates; the caller decides whether to re-authenticate. There
// is no automatic retry within this call.
func (c *Client) OpenIssueCount(ctx context.Context, item domain.WorkItem) (int, error) {
	token, err := c.creds.Token()
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		if entry, ok := c.cache.Get(item.FullName()); ok && time.Now().Before(entry.expires) {
			c.logger.Debug().Str("repo", item.FullName()).Msg("issue count cache hit")
			return entry.count, nil
		}
	}

	if err := c.limiters.Wait(ctx, token); err != nil {
		return 0, apperrors.NewCancelledError("rate limiter wait interrupted", err)
	}

	start := time.Now()
	defer func() {
		remoteRequestDuration.Observe(time.Since(start).Seconds())
	}()

	query := fmt.Sprintf("repo:%s/%s is:issue state:open", item.Owner, item.Name)
	opts := &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1, Page: 1},
	}

	result, resp, err := c.githubClient(token).Search.Issues(ctx, query, opts)
	if err != nil {
		classified := c.classify(resp, err)
		remoteRequestsTotal.WithLabelValues(string(apperrors.CodeOf(classified))).Inc()

		if apperrors.IsUnauthorized(classified) {
			c.invalidateCredential()
		}

		c.logger.Warn().
			Str("repo", item.FullName()).
			Str("error_class", string(apperrors.CodeOf(classified))).
			Err(err).
			Msg("GitHub request failed")
		return 0, classified
	}

	count := result.GetTotal()
	remoteRequestsTotal.WithLabelValues("success").Inc()

	if c.cache != nil {
		c.cache.Add(item.FullName(), countEntry{count: count, expires: time.Now().Add(c.cacheTTL)})
	}

	c.logger.Debug().
		Str("repo", item.FullName()).
		Int("open_issues", count).
		Msg("fetched open issue count")

	return count, nil
}

// classify maps a go-github error to the run-level taxonomy.
func (c *Client) classify(resp *github.Response, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return apperrors.NewCancelledError("request cancelled", ctxErr)
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.NewRateLimitedError("GitHub rate limit exhausted", err)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperrors.NewRateLimitedError("GitHub secondary rate limit hit", err)
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case 401:
			return apperrors.NewUnauthorizedError("GitHub credential rejected, re-authentication required", err)
		default:
			return apperrors.NewTransientError(
				fmt.Sprintf("GitHub request failed with status %d", ghErr.Response.StatusCode), err)
		}
	}

	if resp != nil && resp.StatusCode == 401 {
		return apperrors.NewUnauthorizedError("GitHub credential rejected, re-authentication required", err)
	}

	return apperrors.NewTransientError("GitHub request failed", err)
}

// invalidateCredential clears the provider token and drops the cached
// GitHub client so the next call rebuilds from a fresh credential.
func (c *Client) invalidateCredential() {
	c.creds.Clear()

	c.mu.Lock()
	c.gh = nil
	c.ghToken = ""
	c.mu.Unlock()

	c.logger.Warn().Msg("credential invalidated after 401")
}

func (c *Client) githubClient(token string) *github.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gh != nil && c.ghToken == token {
		return c.gh
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	gh := github.NewClient(tc)

	if c.baseURL != "" {
		base := c.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		if u, err := url.Parse(base); err == nil {
			gh.BaseURL = u
		}
	}

	c.gh = gh
	c.ghToken = token
	return gh
}

func contextError(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return nil
}
