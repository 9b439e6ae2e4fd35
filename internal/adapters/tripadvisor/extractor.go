package tripadvisor

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"tripscraper/internal/domain"
)

const (
	reviewsPerPage = 10
	maxReviewPages = 50
)

// selFn is one extraction rule: selection in, trimmed text (or "") out.
// Chains of these are tried in order until one yields a value, which keeps
// extraction working across the site's periodic class-name reshuffles.
type selFn func(*goquery.Selection) string

func text(selector string) selFn {
	return func(s *goquery.Selection) string {
		return strings.TrimSpace(s.Find(selector).First().Text())
	}
}

func nthText(selector string, n int) selFn {
	return func(s *goquery.Selection) string {
		return strings.TrimSpace(s.Find(selector).Eq(n).Text())
	}
}

func firstOf(s *goquery.Selection, chain ...selFn) string {
	for _, fn := range chain {
		if v := fn(s); v != "" {
			return v
		}
	}
	return ""
}

// Field chains, primary selector first. The data-automation/data-test-target
// hooks are the most stable; the obfuscated class names cover older markup.
var (
	hotelNameChain = []selFn{
		text("h1#HEADING"),
		text(`h1[data-automation="mainH1"]`),
		text("h1.QdLfr"),
	}
	hotelLocationChain = []selFn{
		text(`span[data-automation="hotelAddress"]`),
		text("div.AYHFM"),
		nthText("span.biGQs.pZUbB", 1),
	}
	hotelRatingChain = []selFn{
		text(`div[data-automation="bubbleRatingValue"]`),
		text("div.grdwI"),
		text("span.uwJeR"),
	}
	hotelReviewCountChain = []selFn{
		text(`span[data-automation="reviewCount"]`),
		textContaining("span.biGQs.pZUbB", "review"),
		textContaining("a", "review"),
	}

	reviewContainerSelectors = []string{
		`div[data-automation="reviewCard"]`,
		"div.YibKl",
		"div.review-container",
	}
	reviewTitleChain = []selFn{
		text(`div[data-test-target="review-title"]`),
		text("span.JbGkU"),
		text("span.noQuotes"),
	}
	reviewBodyChain = []selFn{
		text(`span[data-automation="reviewText"]`),
		text("q span"),
		text("p.partial_entry"),
	}

	hotelLinkSelectors = []string{
		"a.property_title",
		"div.listing_title a",
		`a[href*="/Hotel_Review"]`,
	}
)

// textContaining returns the first match of selector whose text mentions
// needle (case-insensitive).
func textContaining(selector, needle string) selFn {
	return func(s *goquery.Selection) string {
		var out string
		s.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			t := strings.TrimSpace(el.Text())
			if strings.Contains(strings.ToLower(t), needle) {
				out = t
				return false
			}
			return true
		})
		return out
	}
}

// Extractor parses hotel and region pages into domain records.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func parseDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// HasHotelMarkers reports whether the document carries the structural markers
// of a hotel page. Callers use a false result to escalate from the static to
// the browser strategy.
func (e *Extractor) HasHotelMarkers(html string) bool {
	doc, err := parseDoc(html)
	if err != nil {
		return false
	}
	return firstOf(doc.Selection, hotelNameChain...) != ""
}

// Hotel extracts the hotel record. Partial extraction is fine: a page with a
// name but no visible rating yields a Hotel with Rating unset. Only a page
// with no hotel markers at all fails.
func (e *Extractor) Hotel(html, sourceURL string) (domain.Hotel, error) {
	doc, err := parseDoc(html)
	if err != nil {
		return domain.Hotel{}, fmt.Errorf("parse document: %w", err)
	}

	name := firstOf(doc.Selection, hotelNameChain...)
	if name == "" {
		return domain.Hotel{}, domain.ErrNotHotelPage
	}

	h := domain.Hotel{SourceURL: sourceURL, Name: name}
	if loc := firstOf(doc.Selection, hotelLocationChain...); loc != "" {
		h.Location = &loc
	}
	if r := parseRating(firstOf(doc.Selection, hotelRatingChain...)); r != nil {
		h.Rating = r
	}
	if n := parseLeadingInt(firstOf(doc.Selection, hotelReviewCountChain...)); n != nil {
		h.ReviewCount = n
	}
	return h, nil
}

// Reviews extracts every review on the page. One malformed review never fails
// the batch: it is skipped and counted instead.
func (e *Extractor) Reviews(html string) ([]domain.Review, int) {
	doc, err := parseDoc(html)
	if err != nil {
		log.Warn().Err(err).Msg("review page did not parse")
		return nil, 0
	}

	var containers *goquery.Selection
	for _, sel := range reviewContainerSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			containers = found
			break
		}
	}
	if containers == nil {
		return nil, 0
	}

	var out []domain.Review
	skipped := 0
	containers.Each(func(_ int, c *goquery.Selection) {
		rv, ok := extractReview(c)
		if !ok {
			skipped++
			return
		}
		out = append(out, rv)
	})
	return out, skipped
}

func extractReview(c *goquery.Selection) (domain.Review, bool) {
	var rv domain.Review

	if t := firstOf(c, reviewTitleChain...); t != "" {
		rv.Title = &t
	}
	if b := firstOf(c, reviewBodyChain...); b != "" {
		rv.Body = &b
	}

	reviewer, date := extractReviewerAndDate(c)
	if reviewer != "" {
		rv.Reviewer = &reviewer
	}
	if date != "" {
		rv.WrittenAt = &date
	}

	rv.Rating = extractReviewRating(c)
	if rv.Rating == nil || *rv.Rating < domain.RatingMin || *rv.Rating > domain.RatingMax {
		return domain.Review{}, false
	}
	rv.Sentiment = domain.SentimentFor(rv.Rating)
	rv.DedupKey = dedupKey(rv)
	return rv, true
}

func extractReviewerAndDate(c *goquery.Selection) (reviewer, date string) {
	// newer markup folds both into "<user> wrote a review <date>"; walk all
	// matching divs and keep the innermost (shortest) one, since every
	// ancestor of the byline matches too
	var line string
	c.Find("div").Each(func(_ int, el *goquery.Selection) {
		t := strings.TrimSpace(el.Text())
		if strings.Contains(t, "wrote a review") && (line == "" || len(t) < len(line)) {
			line = t
		}
	})
	if line != "" {
		parts := strings.SplitN(line, "wrote a review", 2)
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	reviewer = firstOf(c, text("div.info_text"), text(`span[data-automation="memberName"]`))
	date = strings.TrimSpace(strings.TrimPrefix(firstOf(c, text("span.ratingDate")), "Reviewed"))
	return reviewer, date
}

func extractReviewRating(c *goquery.Selection) *float64 {
	// current markup: <svg><title>4.0 of 5 bubbles</title></svg>
	if t := strings.TrimSpace(c.Find("svg title").First().Text()); t != "" {
		if r := parseRating(t); r != nil {
			return r
		}
	}
	// legacy markup: <span class="ui_bubble_rating bubble_45">
	var out *float64
	c.Find("span.ui_bubble_rating").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		for _, cls := range strings.Fields(class) {
			if n, ok := strings.CutPrefix(cls, "bubble_"); ok {
				if v, err := strconv.Atoi(n); err == nil {
					f := float64(v) / 10
					out = &f
					return false
				}
			}
		}
		return true
	})
	return out
}

// HotelURLs enumerates hotel page links from a region listing, resolved
// against base and deduplicated.
func (e *Extractor) HotelURLs(html, baseURL string) []string {
	doc, err := parseDoc(html)
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var anchors *goquery.Selection
	for _, sel := range hotelLinkSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			anchors = found
			break
		}
	}
	if anchors == nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	anchors.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		link, err := url.Parse(href)
		if err != nil {
			return
		}
		if !link.IsAbs() {
			link = base.ResolveReference(link)
		}
		link.Fragment = ""
		full := link.String()
		if seen[full] {
			return
		}
		seen[full] = true
		out = append(out, full)
	})
	return out
}

// ReviewPageURLs synthesizes the paginated review URLs that follow the first
// page: the site encodes the offset as "Reviews-or<N>-" in the path.
func (e *Extractor) ReviewPageURLs(hotelURL string, reviewCount int) []string {
	if reviewCount <= reviewsPerPage {
		return nil
	}
	first, rest, found := strings.Cut(hotelURL, "Reviews-")
	if !found {
		log.Warn().Str("url", hotelURL).Msg("cannot derive pagination from url")
		return nil
	}

	pages := (reviewCount + reviewsPerPage - 1) / reviewsPerPage
	if pages > maxReviewPages {
		pages = maxReviewPages
	}

	out := make([]string, 0, pages-1)
	for off := reviewsPerPage; off < pages*reviewsPerPage; off += reviewsPerPage {
		out = append(out, fmt.Sprintf("%sReviews-or%d-%s", first, off, rest))
	}
	return out
}

// dedupKey is the natural review identity: reviewer|date|title|body hashed.
// Re-scraping the same page maps onto the same key so inserts stay idempotent.
func dedupKey(rv domain.Review) string {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	sig := strings.Join([]string{
		deref(rv.Reviewer), deref(rv.WrittenAt), deref(rv.Title), deref(rv.Body),
	}, "|")
	sum := sha1.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])
}

func parseRating(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i] // "4.0 of 5 bubbles"
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > domain.RatingMax {
		return nil
	}
	return &f
}

func parseLeadingInt(s string) *int {
	fields := strings.Fields(strings.ReplaceAll(s, ",", ""))
	if len(fields) == 0 {
		return nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil
	}
	return &n
}
