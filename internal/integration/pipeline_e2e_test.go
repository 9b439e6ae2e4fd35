//go:build integration || !unit

// Exercises the real pipeline end to end: a canned hotel page goes through
// fetch, extraction, sqlite storage and back out through the HTTP query API.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	httpserver "tripscraper/internal/adapters/http_server"
	"tripscraper/internal/adapters/tripadvisor"
	"tripscraper/internal/app"
	"tripscraper/internal/domain"
	sqliterepo "tripscraper/internal/storage/sqlite"
)

const hotelURL = "https://www.tripadvisor.com/Hotel_Review-g189158-d123456-Grand_Hotel-Lisbon.html"

type cannedFetcher struct{ html string }

func (f *cannedFetcher) Fetch(ctx context.Context, url string) (string, error) { return f.html, nil }
func (f *cannedFetcher) Strategy() string                                      { return "static" }
func (f *cannedFetcher) Close() error                                          { return nil }

type memCache struct{ data map[string][]byte }

func (c *memCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func TestPipeline_ScrapeThenQuery(t *testing.T) {
	ctx := context.Background()

	page, err := os.ReadFile("../adapters/tripadvisor/testdata/hotel_page.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	db, err := sqliterepo.Open(t.TempDir() + "/e2e.db")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := sqliterepo.New(db)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cache := &memCache{data: map[string][]byte{}}
	scraper := app.NewScrapeService(
		&cannedFetcher{html: string(page)}, nil, tripadvisor.NewExtractor(),
		repo, cache, app.ScrapeOptions{MaxPages: 1},
	)

	res := scraper.ScrapeHotel(ctx, hotelURL)
	if res.Err != nil {
		t.Fatalf("scrape: %v", res.Err)
	}
	if res.Stored != 2 || res.Skipped != 1 {
		t.Fatalf("expected 2 stored / 1 skipped, got %d/%d", res.Stored, res.Skipped)
	}

	// query side over the same store
	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Q: app.NewQueryService(repo, cache, time.Minute)})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)

	// one hotel row, fields extracted from the page
	hotel, err := repo.GetHotelByURL(ctx, hotelURL)
	if err != nil {
		t.Fatalf("hotel by url: %v", err)
	}
	if hotel.Name != "Grand Hotel" || hotel.Rating == nil || *hotel.Rating != 4.5 {
		t.Fatalf("unexpected hotel row: %+v", hotel)
	}

	var reviews []struct {
		Reviewer  *string  `json:"reviewer"`
		Rating    *float64 `json:"rating"`
		Sentiment *string  `json:"sentiment"`
	}
	getJSON(t, ts.URL, "/v1/hotels/", hotel.ID, "/reviews", &reviews)
	if len(reviews) != 2 {
		t.Fatalf("expected 2 stored reviews, got %d", len(reviews))
	}
	// newest-first means insertion order reversed
	if *reviews[0].Rating != 3 || *reviews[1].Rating != 5 {
		t.Fatalf("unexpected ratings: %v %v", *reviews[0].Rating, *reviews[1].Rating)
	}
	if *reviews[0].Sentiment != "neutral" || *reviews[1].Sentiment != "positive" {
		t.Fatalf("unexpected sentiments: %v %v", *reviews[0].Sentiment, *reviews[1].Sentiment)
	}

	var sum struct {
		Total         int            `json:"total"`
		AverageRating *float64       `json:"average_rating"`
		Sentiments    map[string]int `json:"sentiments"`
	}
	getJSON(t, ts.URL, "/v1/hotels/", hotel.ID, "/summary", &sum)
	if sum.Total != 2 || sum.AverageRating == nil || *sum.AverageRating != 4 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Sentiments["positive"] != 1 || sum.Sentiments["neutral"] != 1 {
		t.Fatalf("unexpected sentiments: %+v", sum.Sentiments)
	}

	// scraping the same page again must not duplicate rows
	res = scraper.ScrapeHotel(ctx, hotelURL)
	if res.Err != nil {
		t.Fatalf("rescrape: %v", res.Err)
	}
	got, err := repo.QueryReviews(ctx, domain.ReviewFilter{HotelID: &hotel.ID})
	if err != nil {
		t.Fatalf("query reviews: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rescrape duplicated reviews: %d rows", len(got))
	}

	// job history records both runs
	jobs, err := repo.ListJobs(ctx, 10)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Status != domain.JobSucceeded {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func getJSON(t *testing.T, base, prefix string, id int64, suffix string, dst any) {
	t.Helper()
	url := base + prefix + strconv.FormatInt(id, 10) + suffix
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
