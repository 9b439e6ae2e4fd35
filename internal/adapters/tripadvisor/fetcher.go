package tripadvisor

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"tripscraper/internal/adapters/observability"
	"tripscraper/internal/domain"
)

// blockMarkers are content fragments of known anti-bot interstitials. A page
// containing one is surfaced as domain.ErrBlocked, never as valid content.
var blockMarkers = []string{
	"pardon our interruption",
	"are you a robot",
	"unusual activity from your",
	"please verify you are a human",
	"captcha-delivery",
	"access to this page has been denied",
}

func looksBlocked(html string) bool {
	low := strings.ToLower(html)
	for _, m := range blockMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// ClientConfig tunes the plain-HTTP fetch strategy for one scraping session.
type ClientConfig struct {
	Proxies    []string
	UserAgents []string
	Delay      time.Duration // minimum spacing between consecutive requests
	Jitter     time.Duration // random extra delay on top of Delay
	Timeout    time.Duration
}

// Client fetches pages over plain HTTP with rotating headers, optional proxy
// rotation, and a minimum inter-request delay. One Client carries the session
// state for one batch job; concurrent batches use separate Clients.
type Client struct {
	hc      *http.Client
	rl      *rate.Limiter
	headers *headerRotator
	jitter  time.Duration
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if len(cfg.Proxies) > 0 {
		pf, err := RoundRobinProxy(cfg.Proxies...)
		if err != nil {
			return nil, fmt.Errorf("proxy rotation: %w", err)
		}
		transport.Proxy = pf
	}

	return &Client{
		hc:      &http.Client{Timeout: cfg.Timeout, Transport: transport},
		rl:      rate.NewLimiter(rate.Every(cfg.Delay), 1),
		headers: newHeaderRotator(cfg.UserAgents),
		jitter:  cfg.Jitter,
	}, nil
}

func (c *Client) Strategy() string { return "static" }

func (c *Client) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

// Fetch performs a GET with inter-request spacing, retries on 429 and
// transient 5xx honoring Retry-After, and block-page classification.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	html, err := c.fetch(ctx, url)
	observability.ObserveFetch("static", outcomeLabel(err), time.Since(start))
	return html, err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case err == domain.ErrBlocked:
		return "blocked"
	case err == domain.ErrNotFound:
		return "not_found"
	default:
		return "error"
	}
}

func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	// minimum spacing to the host
	if err := c.rl.Wait(ctx); err != nil {
		return "", err
	}
	if !sleepCtx(ctx, randomJitter(c.jitter)) {
		return "", ctx.Err()
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		c.headers.apply(req)

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("fetch %s: %w", url, err)
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", lastErr
		}

		switch resp.StatusCode {
		case http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
			resp.Body.Close()
			if err != nil {
				return "", fmt.Errorf("read body %s: %w", url, err)
			}
			html := string(body)
			if looksBlocked(html) {
				log.Warn().Str("url", url).Msg("block page detected")
				return "", domain.ErrBlocked
			}
			return html, nil

		case http.StatusNotFound, http.StatusGone:
			resp.Body.Close()
			return "", domain.ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			// the site answers bot traffic with 403 once it flags a client
			resp.Body.Close()
			return "", domain.ErrBlocked

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("fetch %s: remote %d", url, resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return "", fmt.Errorf("fetch %s: bad status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return "", lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles each attempt (200ms, 400ms, 800ms...) with up to +50%
// jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

// randomJitter returns a random duration in [0, max).
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [2]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0
	}
	n := int64(b[0])<<8 | int64(b[1])
	return time.Duration(n % int64(max))
}
