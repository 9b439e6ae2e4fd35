package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"tripscraper/internal/adapters/observability"
	redisad "tripscraper/internal/adapters/redis"
	"tripscraper/internal/adapters/tripadvisor"
	"tripscraper/internal/app"
	"tripscraper/internal/domain"
	"tripscraper/internal/shared"
	sqliterepo "tripscraper/internal/storage/sqlite"
)

func main() {
	cfg := shared.Load()

	var (
		region    = flag.String("region", "", "region listing URL to enumerate hotels from")
		maxHotels = flag.Int("hotels", cfg.MaxHotels, "max hotels to scrape from a region listing")
		maxPages  = flag.Int("pages", cfg.MaxPages, "max review pages per hotel, first page included")
		browser   = flag.Bool("browser", cfg.UseBrowser, "render pages in headless Chrome instead of plain HTTP")
	)
	flag.Parse()
	urls := flag.Args()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	if *region == "" && len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: scraper [-region URL] [hotel URL ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqliterepo.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("opening sqlite failed")
	}
	repo := sqliterepo.New(db)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	static, err := tripadvisor.NewClient(tripadvisor.ClientConfig{
		Proxies: cfg.Proxies,
		Delay:   cfg.FetchDelay,
		Jitter:  cfg.FetchJitter,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("building http client failed")
	}

	var rendered domain.Fetcher
	if *browser {
		b, err := tripadvisor.NewBrowser(tripadvisor.BrowserConfig{Timeout: cfg.Timeout})
		if err != nil {
			log.Fatal().Err(err).Msg("starting browser failed")
		}
		defer func() { _ = b.Close() }()
		rendered = b
	}

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		// the scraper still works without cache invalidation targets
		log.Warn().Err(err).Msg("redis unreachable, cached reads may go stale")
	}

	svc := app.NewScrapeService(static, rendered, tripadvisor.NewExtractor(), repo, cache, app.ScrapeOptions{
		MaxPages:      *maxPages,
		Workers:       cfg.Workers,
		PreferBrowser: *browser,
	})

	var summary app.BatchSummary
	if *region != "" {
		summary, err = svc.ScrapeRegion(ctx, *region, *maxHotels)
		if err != nil {
			log.Fatal().Err(err).Str("region", *region).Msg("region scrape failed")
		}
	} else {
		for _, u := range urls {
			r := svc.ScrapeHotel(ctx, u)
			summary.Results = append(summary.Results, r)
			if r.Err != nil {
				summary.Failed++
				continue
			}
			summary.Succeeded++
			summary.Stored += r.Stored
			summary.Skipped += r.Skipped
		}
	}

	for _, r := range summary.Results {
		if r.Err != nil {
			fmt.Printf("FAIL  %s  (%v)\n", r.URL, r.Err)
			continue
		}
		fmt.Printf("OK    %s  strategy=%s stored=%d skipped=%d\n", r.URL, r.Strategy, r.Stored, r.Skipped)
	}
	fmt.Printf("done: %d succeeded, %d failed, %d reviews stored, %d skipped\n",
		summary.Succeeded, summary.Failed, summary.Stored, summary.Skipped)

	if summary.Failed > 0 && summary.Succeeded == 0 {
		os.Exit(1)
	}
}
