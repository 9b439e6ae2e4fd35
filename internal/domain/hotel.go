package domain

type Hotel struct {
	ID          int64
	SourceURL   string // hotel page URL on the review site; natural identifier
	Name        string
	Location    *string
	Rating      *float64 // aggregate bubble rating, 1.0..5.0
	ReviewCount *int     // total reviews reported by the page, drives pagination
}

type HotelsQuery struct {
	Location *string // substring match on location
	Limit    int
}
