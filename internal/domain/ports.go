package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBlocked      = errors.New("blocked by anti-bot interstitial")
	ErrNotHotelPage = errors.New("document is not a hotel page")
)

type HotelRepository interface {
	// Write paths
	UpsertHotel(ctx context.Context, h Hotel) (int64, error)
	InsertReviews(ctx context.Context, hotelID int64, rs []Review) error
	CreateJob(ctx context.Context, j ScrapeJob) (int64, error)
	FinishJob(ctx context.Context, id int64, res JobResult) error

	// Read paths
	GetHotel(ctx context.Context, id int64) (Hotel, error)
	GetHotelByURL(ctx context.Context, url string) (Hotel, error)
	ListHotels(ctx context.Context, q HotelsQuery) ([]Hotel, error)
	QueryReviews(ctx context.Context, f ReviewFilter) ([]Review, error)
	ReviewSummary(ctx context.Context, hotelID int64) (ReviewSummary, error)
	ListJobs(ctx context.Context, limit int) ([]ScrapeJob, error)
}

// Fetcher retrieves a page's raw HTML. Implementations classify failures:
// ErrBlocked for recognized interstitials, ErrNotFound for 404, wrapped
// network errors otherwise.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Strategy() string
	Close() error
}

// Extractor turns raw HTML into structured records via fallback selector
// chains. Reviews never fails the batch for one malformed review; it skips
// and counts instead.
type Extractor interface {
	Hotel(html, sourceURL string) (Hotel, error)
	Reviews(html string) (reviews []Review, skipped int)
	HotelURLs(html, baseURL string) []string
	ReviewPageURLs(hotelURL string, reviewCount int) []string
	HasHotelMarkers(html string) bool
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
