package tripadvisor

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"tripscraper/internal/adapters/observability"
	"tripscraper/internal/domain"
)

// BrowserConfig tunes the browser-rendered fetch strategy.
type BrowserConfig struct {
	UserAgent string
	Timeout   time.Duration
	WaitExtra time.Duration // settle time after load for late-running scripts
}

// Browser renders pages in headless Chrome for content populated by
// client-side scripting.
type Browser struct {
	cfg       BrowserConfig
	allocCtx  context.Context
	cancelCtx context.CancelFunc
}

func NewBrowser(cfg BrowserConfig) (*Browser, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgents[0]
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{cfg: cfg, allocCtx: allocCtx, cancelCtx: cancel}, nil
}

func (b *Browser) Strategy() string { return "browser" }

func (b *Browser) Close() error {
	if b.cancelCtx != nil {
		b.cancelCtx()
	}
	return nil
}

// Fetch navigates to url in a fresh browser context and returns the rendered
// document. Block interstitials are classified the same way as static fetches.
func (b *Browser) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	html, err := b.fetch(ctx, url)
	observability.ObserveFetch("browser", outcomeLabel(err), time.Since(start))
	return html, err
}

func (b *Browser) fetch(ctx context.Context, url string) (string, error) {
	browserCtx, cancelBrowser := chromedp.NewContext(b.allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, b.cfg.Timeout)
	defer cancelTimeout()

	// stop early if the caller's context goes away
	go func() {
		select {
		case <-ctx.Done():
			cancelTimeout()
		case <-timeoutCtx.Done():
		}
	}()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	}
	if b.cfg.WaitExtra > 0 {
		actions = append(actions, chromedp.Sleep(b.cfg.WaitExtra))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(timeoutCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("browser fetch %s: %w", url, err)
	}

	if looksBlocked(html) {
		log.Warn().Str("url", url).Msg("block page detected after render")
		return "", domain.ErrBlocked
	}
	return html, nil
}
