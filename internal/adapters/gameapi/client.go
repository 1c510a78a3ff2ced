// Package gameapi is a rate limited client for the game's public JSON API.
package gameapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/levels"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
	"github.com/GungHo1205/manarion-guild-stats/pkg/metrics"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultRequestDelay   = 500 * time.Millisecond
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 16 * time.Second
	defaultUserAgent      = "manarion-guild-stats/1.0"

	maxBodyBytes = 8 << 20
)

// Client fetches guilds, owner profiles and market quotes.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	userAgent      string
	log            logger.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Every(defaultRequestDelay), 1),
		timeout:        defaultTimeout,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		userAgent:      defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("gameapi")
	}
	return c
}

// FetchGuildList returns the guild list in the order the API ranks it.
func (c *Client) FetchGuildList(ctx context.Context) ([]model.Guild, error) {
	body, err := c.doRequest(ctx, "guilds", "/guilds")
	if err != nil {
		return nil, err
	}
	guilds, skipped, err := decodeGuilds(body)
	if err != nil {
		return nil, fmt.Errorf("%w: guilds: %w", ErrUnavailable, err)
	}
	if skipped > 0 {
		c.log.Warn(ctx, "skipped malformed guild entries", logger.Int("count", skipped))
		metrics.RecordPayloadIssues(skipped)
	}
	return guilds, nil
}

// FetchPlayer returns the boost profile of a player. Malformed fragments of
// the payload are skipped.
func (c *Client) FetchPlayer(ctx context.Context, playerID int64) (model.PlayerBoostProfile, error) {
	body, err := c.doRequest(ctx, "player", "/player/"+strconv.FormatInt(playerID, 10))
	if err != nil {
		metrics.RecordPlayerFetch(false)
		return model.PlayerBoostProfile{}, err
	}
	profile, issues, err := levels.ParseProfile(body)
	if err != nil {
		metrics.RecordPlayerFetch(false)
		return model.PlayerBoostProfile{}, fmt.Errorf("%w: player %d: %w", ErrUnavailable, playerID, err)
	}
	if len(issues) > 0 {
		metrics.RecordPayloadIssues(len(issues))
		c.log.Debug(ctx, "player payload issues",
			logger.Int64("player_id", playerID),
			logger.Int("count", len(issues)),
			logger.String("first", issues[0].String()),
		)
	}
	metrics.RecordPlayerFetch(true)
	return profile, nil
}

// FetchMarket returns current buy/sell quotes of all tradeable items,
// ordered by item id.
func (c *Client) FetchMarket(ctx context.Context) ([]model.MarketQuote, error) {
	body, err := c.doRequest(ctx, "market", "/market")
	if err != nil {
		return nil, err
	}
	quotes, skipped, err := decodeMarket(body)
	if err != nil {
		return nil, fmt.Errorf("%w: market: %w", ErrUnavailable, err)
	}
	if skipped > 0 {
		c.log.Debug(ctx, "skipped market entries", logger.Int("count", skipped))
	}
	return quotes, nil
}

// doRequest performs a GET with rate limiting and retry logic and returns
// the response body.
func (c *Client) doRequest(ctx context.Context, endpoint, path string) ([]byte, error) {
	url := c.baseURL + path
	backoff := c.initialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordAPIRetry()
			c.log.Debug(ctx, "retrying game api request",
				logger.String("endpoint", endpoint),
				logger.Int("attempt", attempt),
				logger.Error(lastErr),
			)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limiter: %w", ErrUnavailable, path, err)
		}

		body, status, retryAfter, err := c.once(ctx, endpoint, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(status) || ctx.Err() != nil {
			break
		}
		if attempt == c.maxRetries {
			break
		}

		wait := backoff
		if retryAfter > 0 {
			wait = min(retryAfter, c.maxBackoff)
		}
		if err := sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, lastErr)
}

// once runs a single attempt. status is 0 on transport errors.
func (c *Client) once(ctx context.Context, endpoint, url string) ([]byte, int, time.Duration, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, http.StatusBadRequest, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(endpoint, "error", msSince(start))
		return nil, 0, 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.RecordAPIRequest(endpoint, strconv.Itoa(resp.StatusCode), msSince(start))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, resp.StatusCode, 0, nil
	}
	return nil, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")),
		fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// retryable reports whether an attempt that ended with status may be retried.
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// IsUnavailable reports whether err came from the game API client.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
