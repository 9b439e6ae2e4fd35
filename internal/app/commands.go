package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"tripscraper/internal/adapters/observability"
	"tripscraper/internal/domain"
)

// TargetResult is the per-item entry of a batch summary.
type TargetResult struct {
	URL      string
	Strategy string
	Stored   int
	Skipped  int
	Err      error
}

// BatchSummary reports a whole region scrape. A single target's failure never
// fails the batch; it lands here instead.
type BatchSummary struct {
	Results   []TargetResult
	Succeeded int
	Failed    int
	Stored    int
	Skipped   int
}

type ScrapeOptions struct {
	MaxPages      int  // review pages per hotel, first page included
	Workers       int  // parallel hotel scrapes within a region
	PreferBrowser bool // skip the static attempt entirely
}

// ScrapeService drives fetch → extract → store for hotel and region targets.
// One instance carries the session state (rate limiter, rotation counters,
// browser) for one batch job.
type ScrapeService struct {
	static  domain.Fetcher
	browser domain.Fetcher // nil when browser rendering is unavailable
	ext     domain.Extractor
	repo    domain.HotelRepository
	cache   domain.Cache
	opts    ScrapeOptions
}

func NewScrapeService(static, browser domain.Fetcher, ext domain.Extractor, repo domain.HotelRepository, cache domain.Cache, opts ScrapeOptions) *ScrapeService {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &ScrapeService{static: static, browser: browser, ext: ext, repo: repo, cache: cache, opts: opts}
}

// fetchPage fetches url, escalating from static to browser when the static
// result lacks hotel markers. The fallback is a retry decision made here, not
// inside the fetchers.
func (s *ScrapeService) fetchPage(ctx context.Context, url string) (html string, fetcher domain.Fetcher, err error) {
	if s.opts.PreferBrowser && s.browser != nil {
		html, err = s.browser.Fetch(ctx, url)
		return html, s.browser, err
	}

	html, err = s.static.Fetch(ctx, url)
	if err != nil {
		return "", s.static, err
	}
	if !s.ext.HasHotelMarkers(html) && s.browser != nil {
		log.Info().Str("url", url).Msg("static fetch lacks markers, retrying with browser")
		html, err = s.browser.Fetch(ctx, url)
		return html, s.browser, err
	}
	return html, s.static, nil
}

// ScrapeHotel runs one hotel job end to end and records it in the job table.
// The returned TargetResult carries the error instead of failing the caller's
// batch loop.
func (s *ScrapeService) ScrapeHotel(ctx context.Context, url string) TargetResult {
	res := TargetResult{URL: url}

	jobID, err := s.repo.CreateJob(ctx, domain.ScrapeJob{
		TargetURL: url, Kind: domain.JobHotel, Status: domain.JobRunning,
	})
	if err != nil {
		res.Err = fmt.Errorf("create job: %w", err)
		return res
	}

	res = s.scrapeHotel(ctx, url)
	status := domain.JobSucceeded
	if res.Err != nil {
		status = domain.JobFailed
	}
	if err := s.repo.FinishJob(ctx, jobID, domain.JobResult{
		Status: status, Strategy: res.Strategy, Err: res.Err,
		Stored: res.Stored, Skipped: res.Skipped,
	}); err != nil {
		log.Error().Err(err).Int64("job", jobID).Msg("finish job failed")
	}
	return res
}

func (s *ScrapeService) scrapeHotel(ctx context.Context, url string) TargetResult {
	res := TargetResult{URL: url}

	html, fetcher, err := s.fetchPage(ctx, url)
	res.Strategy = fetcher.Strategy()
	if err != nil {
		res.Err = err
		return res
	}

	hotel, err := s.ext.Hotel(html, url)
	if err != nil {
		res.Err = err
		return res
	}

	hotelID, err := s.repo.UpsertHotel(ctx, hotel)
	if err != nil {
		res.Err = fmt.Errorf("upsert hotel: %w", err)
		return res
	}

	reviews, skipped := s.ext.Reviews(html)

	// subsequent review pages, same strategy that served the first page
	if hotel.ReviewCount != nil {
		pages := s.ext.ReviewPageURLs(url, *hotel.ReviewCount)
		if len(pages) > s.opts.MaxPages-1 {
			pages = pages[:s.opts.MaxPages-1]
		}
		for _, pageURL := range pages {
			pageHTML, perr := fetcher.Fetch(ctx, pageURL)
			if perr != nil {
				if ctx.Err() != nil {
					res.Err = ctx.Err()
					return res
				}
				// one bad page loses its reviews, not the hotel
				log.Warn().Err(perr).Str("url", pageURL).Msg("review page fetch failed")
				continue
			}
			rs, sk := s.ext.Reviews(pageHTML)
			reviews = append(reviews, rs...)
			skipped += sk
		}
	}

	if err := s.repo.InsertReviews(ctx, hotelID, reviews); err != nil {
		res.Err = fmt.Errorf("insert reviews for %d: %w", hotelID, err)
		return res
	}
	observability.ReviewsStored.Add(float64(len(reviews)))
	observability.ReviewsSkipped.Add(float64(skipped))

	s.invalidateHotel(ctx, hotelID)

	res.Stored = len(reviews)
	res.Skipped = skipped
	log.Info().
		Str("hotel", hotel.Name).
		Int("stored", res.Stored).
		Int("skipped", res.Skipped).
		Str("strategy", res.Strategy).
		Msg("hotel scraped")
	return res
}

// ScrapeRegion enumerates hotel URLs from a region listing and scrapes each
// through a bounded worker pool. Per-target failures are recorded in the
// summary and never abort the batch.
func (s *ScrapeService) ScrapeRegion(ctx context.Context, url string, maxHotels int) (BatchSummary, error) {
	jobID, err := s.repo.CreateJob(ctx, domain.ScrapeJob{
		TargetURL: url, Kind: domain.JobRegion, Status: domain.JobRunning,
	})
	if err != nil {
		return BatchSummary{}, fmt.Errorf("create job: %w", err)
	}

	html, fetcher, err := s.fetchPage(ctx, url)
	if err != nil {
		_ = s.repo.FinishJob(ctx, jobID, domain.JobResult{
			Status: domain.JobFailed, Strategy: fetcher.Strategy(), Err: err,
		})
		return BatchSummary{}, err
	}

	urls := s.ext.HotelURLs(html, url)
	if maxHotels > 0 && len(urls) > maxHotels {
		urls = urls[:maxHotels]
	}
	log.Info().Int("hotels", len(urls)).Str("region", url).Msg("region enumerated")

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary BatchSummary
	)
	sem := semaphore.NewWeighted(int64(s.opts.Workers))

	for _, hotelURL := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context gone; in-flight scrapes still finish below
		}
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			defer sem.Release(1)

			r := s.ScrapeHotel(ctx, target)
			mu.Lock()
			summary.Results = append(summary.Results, r)
			mu.Unlock()
		}(hotelURL)
	}
	wg.Wait()

	for _, r := range summary.Results {
		if r.Err != nil {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		summary.Stored += r.Stored
		summary.Skipped += r.Skipped
	}

	_ = s.repo.FinishJob(ctx, jobID, domain.JobResult{
		Status: domain.JobSucceeded, Strategy: fetcher.Strategy(),
		Stored: summary.Stored, Skipped: summary.Skipped,
	})
	return summary, nil
}

func (s *ScrapeService) invalidateHotel(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	// keys must match the read path in queries.go
	for _, key := range []string{
		fmt.Sprintf("hotel:%d", id),
		fmt.Sprintf("reviews:%d", id),
		fmt.Sprintf("summary:%d", id),
	} {
		if err := s.cache.Del(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		}
	}
}
