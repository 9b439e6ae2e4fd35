package app

import (
	"context"
	"fmt"
	"time"

	"tripscraper/internal/domain"
)

// DefaultReviewLimit is the read-path page size; only unfiltered queries at
// this size are cached, so the scraper knows exactly which key to invalidate.
const DefaultReviewLimit = 50

type QueryService struct {
	repo     domain.HotelRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.HotelRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetHotel(ctx context.Context, id int64) (domain.Hotel, error) {
	key := fmt.Sprintf("hotel:%d", id)
	var h domain.Hotel
	if ok, _ := s.cache.Get(ctx, key, &h); ok {
		return h, nil
	}
	h, err := s.repo.GetHotel(ctx, id)
	if err != nil {
		return domain.Hotel{}, err
	}
	_ = s.cache.Set(ctx, key, h, int(s.cacheTTL.Seconds()))
	return h, nil
}

func (s *QueryService) ListHotels(ctx context.Context, q domain.HotelsQuery) ([]domain.Hotel, error) {
	return s.repo.ListHotels(ctx, q)
}

func (s *QueryService) Reviews(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, error) {
	if !cacheableFilter(f) {
		return s.repo.QueryReviews(ctx, f)
	}

	key := fmt.Sprintf("reviews:%d", *f.HotelID)
	var cached []domain.Review
	if ok, _ := s.cache.Get(ctx, key, &cached); ok {
		return cached, nil
	}

	rs, err := s.repo.QueryReviews(ctx, f)
	if err != nil {
		return nil, err
	}
	// copy to avoid aliasing the repo's backing array into the cache
	cp := make([]domain.Review, len(rs))
	copy(cp, rs)
	_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	return cp, nil
}

// cacheableFilter: only the plain "latest reviews for one hotel" shape is
// cached; filtered queries go straight to the store.
func cacheableFilter(f domain.ReviewFilter) bool {
	return f.HotelID != nil &&
		f.MinRating == nil && f.MaxRating == nil && f.Contains == nil &&
		(f.Limit == 0 || f.Limit == DefaultReviewLimit)
}

func (s *QueryService) Summary(ctx context.Context, hotelID int64) (domain.ReviewSummary, error) {
	key := fmt.Sprintf("summary:%d", hotelID)
	var sum domain.ReviewSummary
	if ok, _ := s.cache.Get(ctx, key, &sum); ok {
		return sum, nil
	}
	sum, err := s.repo.ReviewSummary(ctx, hotelID)
	if err != nil {
		return domain.ReviewSummary{}, err
	}
	_ = s.cache.Set(ctx, key, sum, int(s.cacheTTL.Seconds()))
	return sum, nil
}

func (s *QueryService) Jobs(ctx context.Context, limit int) ([]domain.ScrapeJob, error) {
	return s.repo.ListJobs(ctx, limit)
}
