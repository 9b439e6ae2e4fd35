package domain

const (
	RatingMin = 1.0
	RatingMax = 5.0
)

type Review struct {
	ID        int64
	HotelID   int64
	DedupKey  string // sha1 over reviewer|date|title|body
	Reviewer  *string
	Title     *string
	Body      *string
	Rating    *float64 // 1.0..5.0
	WrittenAt *string  // date text as shown on the page
	Sentiment *string  // positive|neutral|negative, derived from rating
}

type ReviewFilter struct {
	HotelID   *int64
	MinRating *float64
	MaxRating *float64
	Contains  *string // substring match on body
	Limit     int
}

// ReviewSummary aggregates a hotel's stored reviews.
type ReviewSummary struct {
	HotelID       int64
	Total         int
	AverageRating *float64 // nil when no rated reviews exist
	Sentiments    map[string]int
}

// SentimentFor buckets a bubble rating the way the reporting side expects:
// 4+ positive, 3+ neutral, everything lower negative.
func SentimentFor(rating *float64) *string {
	if rating == nil {
		return nil
	}
	s := "negative"
	switch {
	case *rating >= 4:
		s = "positive"
	case *rating >= 3:
		s = "neutral"
	}
	return &s
}
