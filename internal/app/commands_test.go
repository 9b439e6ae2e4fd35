package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"tripscraper/internal/adapters/tripadvisor"
	"tripscraper/internal/app"
	"tripscraper/internal/domain"
)

// ---- fakes ----

type fakeFetcher struct {
	strategy string
	mu       sync.Mutex
	pages    map[string]string
	errs     map[string]error
	calls    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	if html, ok := f.pages[url]; ok {
		return html, nil
	}
	return "", fmt.Errorf("fetch %s: connection refused", url)
}

func (f *fakeFetcher) Strategy() string { return f.strategy }
func (f *fakeFetcher) Close() error     { return nil }

type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	hotels   map[string]domain.Hotel // by source url, ID filled in
	reviews  map[int64][]domain.Review
	jobs     map[int64]domain.ScrapeJob
	finished map[int64]domain.JobResult

	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		hotels:   map[string]domain.Hotel{},
		reviews:  map[int64][]domain.Review{},
		jobs:     map[int64]domain.ScrapeJob{},
		finished: map[int64]domain.JobResult{},
	}
}

func (r *fakeRepo) UpsertHotel(ctx context.Context, h domain.Hotel) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.hotels[h.SourceURL]; ok {
		h.ID = old.ID
	} else {
		r.nextID++
		h.ID = r.nextID
	}
	r.hotels[h.SourceURL] = h
	return h.ID, nil
}

func (r *fakeRepo) InsertReviews(ctx context.Context, hotelID int64, rs []domain.Review) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews[hotelID] = append(r.reviews[hotelID], rs...)
	return nil
}

func (r *fakeRepo) CreateJob(ctx context.Context, j domain.ScrapeJob) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	j.ID = r.nextID
	r.jobs[j.ID] = j
	return j.ID, nil
}

func (r *fakeRepo) FinishJob(ctx context.Context, id int64, res domain.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[id] = res
	return nil
}

func (r *fakeRepo) GetHotel(ctx context.Context, id int64) (domain.Hotel, error) {
	return domain.Hotel{}, domain.ErrNotFound
}
func (r *fakeRepo) GetHotelByURL(ctx context.Context, url string) (domain.Hotel, error) {
	return domain.Hotel{}, domain.ErrNotFound
}
func (r *fakeRepo) ListHotels(ctx context.Context, q domain.HotelsQuery) ([]domain.Hotel, error) {
	return nil, nil
}
func (r *fakeRepo) QueryReviews(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, error) {
	return nil, nil
}
func (r *fakeRepo) ReviewSummary(ctx context.Context, hotelID int64) (domain.ReviewSummary, error) {
	return domain.ReviewSummary{}, nil
}
func (r *fakeRepo) ListJobs(ctx context.Context, limit int) ([]domain.ScrapeJob, error) {
	return nil, nil
}

// ---- fixtures ----

const hotelPage = `<html><body>
<h1 id="HEADING">Grand Hotel</h1>
<span data-automation="hotelAddress">Lisbon, Portugal</span>
<div data-automation="bubbleRatingValue">4.5</div>
<span data-automation="reviewCount">14 reviews</span>
<div data-automation="reviewCard">
  <div><div>Ana M wrote a review Sep 2023</div></div>
  <svg><title>5.0 of 5 bubbles</title></svg>
  <div data-test-target="review-title">Wonderful</div>
  <span data-automation="reviewText">Great breakfast.</span>
</div>
<div data-automation="reviewCard">
  <div><div>Ben K wrote a review Aug 2023</div></div>
  <svg><title>3.0 of 5 bubbles</title></svg>
  <div data-test-target="review-title">Average</div>
  <span data-automation="reviewText">Noisy street.</span>
</div>
<div data-automation="reviewCard">
  <div><div>Cleo P wrote a review Jul 2023</div></div>
  <div data-test-target="review-title">No rating</div>
  <span data-automation="reviewText">Widget never loaded.</span>
</div>
</body></html>`

const reviewPage2 = `<html><body>
<h1 id="HEADING">Grand Hotel</h1>
<div data-automation="reviewCard">
  <div><div>Dora V wrote a review Jun 2023</div></div>
  <svg><title>4.0 of 5 bubbles</title></svg>
  <span data-automation="reviewText">Would come back.</span>
</div>
</body></html>`

const emptyShell = `<html><body><div id="root"></div></body></html>`

const regionPage = `<html><body>
<a class="property_title" href="/Hotel_Review-d1-Reviews-Grand_Hotel.html">Grand Hotel</a>
<a class="property_title" href="/Hotel_Review-d2-Reviews-Hotel_Miramar.html">Hotel Miramar</a>
</body></html>`

func newService(static, browser domain.Fetcher, repo domain.HotelRepository, opts app.ScrapeOptions) *app.ScrapeService {
	return app.NewScrapeService(static, browser, tripadvisor.NewExtractor(), repo, nil, opts)
}

// ---- tests ----

func TestScrapeHotel_EndToEnd(t *testing.T) {
	url := "https://x.test/Hotel_Review-d1-Reviews-Grand_Hotel.html"
	page2 := "https://x.test/Hotel_Review-d1-Reviews-or10-Grand_Hotel.html"
	static := &fakeFetcher{strategy: "static", pages: map[string]string{
		url:   hotelPage,
		page2: reviewPage2,
	}}
	repo := newFakeRepo()
	svc := newService(static, nil, repo, app.ScrapeOptions{MaxPages: 2})

	res := svc.ScrapeHotel(context.Background(), url)
	if res.Err != nil {
		t.Fatalf("unexpected err: %v", res.Err)
	}
	if res.Strategy != "static" {
		t.Errorf("strategy: got %q", res.Strategy)
	}
	if res.Stored != 3 || res.Skipped != 1 {
		t.Fatalf("expected 3 stored / 1 skipped (2 from page one, 1 from page two), got %d/%d", res.Stored, res.Skipped)
	}

	h := repo.hotels[url]
	if h.Name != "Grand Hotel" || h.Rating == nil || *h.Rating != 4.5 {
		t.Fatalf("unexpected hotel: %+v", h)
	}
	rs := repo.reviews[h.ID]
	if len(rs) != 3 {
		t.Fatalf("expected 3 stored reviews, got %d", len(rs))
	}
	if *rs[0].Rating != 5 || *rs[1].Rating != 3 || *rs[2].Rating != 4 {
		t.Fatalf("unexpected ratings: %v %v %v", *rs[0].Rating, *rs[1].Rating, *rs[2].Rating)
	}

	// job recorded with terminal state and counts
	var finished *domain.JobResult
	for _, f := range repo.finished {
		f := f
		finished = &f
	}
	if finished == nil || finished.Status != domain.JobSucceeded || finished.Stored != 3 || finished.Skipped != 1 {
		t.Fatalf("unexpected job result: %+v", finished)
	}
}

func TestScrapeHotel_SinglePageWithoutPagination(t *testing.T) {
	// a 14-review hotel capped at MaxPages=1 fetches only the first page
	url := "https://x.test/Hotel_Review-d1-Reviews-Grand_Hotel.html"
	static := &fakeFetcher{strategy: "static", pages: map[string]string{url: hotelPage}}
	repo := newFakeRepo()
	svc := newService(static, nil, repo, app.ScrapeOptions{MaxPages: 1})

	res := svc.ScrapeHotel(context.Background(), url)
	if res.Err != nil {
		t.Fatalf("unexpected err: %v", res.Err)
	}
	if res.Stored != 2 || res.Skipped != 1 {
		t.Fatalf("expected 2 stored / 1 skipped, got %d/%d", res.Stored, res.Skipped)
	}
	if len(static.calls) != 1 {
		t.Fatalf("expected a single fetch, got %v", static.calls)
	}
}

func TestScrapeHotel_FallsBackToBrowser(t *testing.T) {
	url := "https://x.test/hotel"
	static := &fakeFetcher{strategy: "static", pages: map[string]string{url: emptyShell}}
	browser := &fakeFetcher{strategy: "browser", pages: map[string]string{url: hotelPage}}
	repo := newFakeRepo()
	svc := newService(static, browser, repo, app.ScrapeOptions{MaxPages: 1})

	res := svc.ScrapeHotel(context.Background(), url)
	if res.Err != nil {
		t.Fatalf("unexpected err: %v", res.Err)
	}
	if res.Strategy != "browser" {
		t.Fatalf("expected browser fallback, got %q", res.Strategy)
	}
	if len(browser.calls) != 1 {
		t.Fatalf("expected one browser fetch, got %v", browser.calls)
	}
}

func TestScrapeHotel_BlockedFailsJob(t *testing.T) {
	url := "https://x.test/hotel"
	static := &fakeFetcher{strategy: "static", errs: map[string]error{url: domain.ErrBlocked}}
	repo := newFakeRepo()
	svc := newService(static, nil, repo, app.ScrapeOptions{})

	res := svc.ScrapeHotel(context.Background(), url)
	if !errors.Is(res.Err, domain.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", res.Err)
	}
	for _, f := range repo.finished {
		if f.Status != domain.JobFailed {
			t.Fatalf("expected failed job, got %+v", f)
		}
	}
}

func TestScrapeRegion_BatchContinuesPastFailures(t *testing.T) {
	region := "https://x.test/Hotels-Lisbon.html"
	good := "https://x.test/Hotel_Review-d1-Reviews-Grand_Hotel.html"
	bad := "https://x.test/Hotel_Review-d2-Reviews-Hotel_Miramar.html"

	static := &fakeFetcher{
		strategy: "static",
		pages:    map[string]string{region: regionPage, good: hotelPage},
		errs:     map[string]error{bad: domain.ErrBlocked},
	}
	repo := newFakeRepo()
	svc := newService(static, nil, repo, app.ScrapeOptions{MaxPages: 1, Workers: 2})

	sum, err := svc.ScrapeRegion(context.Background(), region, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(sum.Results) != 2 || sum.Succeeded != 1 || sum.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Stored != 2 || sum.Skipped != 1 {
		t.Fatalf("expected counts from the good hotel only, got %d/%d", sum.Stored, sum.Skipped)
	}
}
