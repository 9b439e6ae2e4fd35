package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"tripscraper/internal/app"
	"tripscraper/internal/domain"
)

type Handlers struct{ Q *app.QueryService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/hotels", h.listHotels)
	s.mux.Get("/v1/hotels/{id}", h.getHotel)
	s.mux.Get("/v1/hotels/{id}/reviews", h.listReviews)
	s.mux.Get("/v1/hotels/{id}/summary", h.getSummary)
	s.mux.Get("/v1/jobs", h.listJobs)
}

// ---- wire DTOs ----

type hotelDTO struct {
	ID          int64    `json:"id"`
	SourceURL   string   `json:"source_url"`
	Name        string   `json:"name"`
	Location    *string  `json:"location,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
}

type reviewDTO struct {
	ID        int64    `json:"id"`
	Reviewer  *string  `json:"reviewer,omitempty"`
	Title     *string  `json:"title,omitempty"`
	Body      *string  `json:"body,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
	WrittenAt *string  `json:"written_at,omitempty"`
	Sentiment *string  `json:"sentiment,omitempty"`
}

type summaryDTO struct {
	HotelID       int64          `json:"hotel_id"`
	Total         int            `json:"total"`
	AverageRating *float64       `json:"average_rating,omitempty"`
	Sentiments    map[string]int `json:"sentiments"`
}

type jobDTO struct {
	ID         int64      `json:"id"`
	TargetURL  string     `json:"target_url"`
	Kind       string     `json:"kind"`
	Strategy   string     `json:"strategy,omitempty"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	Stored     int        `json:"stored"`
	Skipped    int        `json:"skipped"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func toHotelDTO(h domain.Hotel) hotelDTO {
	return hotelDTO{ID: h.ID, SourceURL: h.SourceURL, Name: h.Name, Location: h.Location, Rating: h.Rating, ReviewCount: h.ReviewCount}
}

func toReviewDTO(r domain.Review) reviewDTO {
	return reviewDTO{ID: r.ID, Reviewer: r.Reviewer, Title: r.Title, Body: r.Body, Rating: r.Rating, WrittenAt: r.WrittenAt, Sentiment: r.Sentiment}
}

func toJobDTO(j domain.ScrapeJob) jobDTO {
	return jobDTO{
		ID: j.ID, TargetURL: j.TargetURL, Kind: string(j.Kind), Strategy: j.Strategy,
		Status: string(j.Status), Error: j.Error, Stored: j.Stored, Skipped: j.Skipped,
		StartedAt: j.StartedAt, FinishedAt: j.FinishedAt,
	}
}

// ---- helpers ----

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func parseLimit(r *http.Request, def, max int) (int, bool) {
	ls := r.URL.Query().Get("limit")
	if ls == "" {
		return def, true
	}
	l, err := strconv.Atoi(ls)
	if err != nil || l <= 0 || l > max {
		return 0, false
	}
	return l, true
}

func parseRating(r *http.Request, name string) (*float64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < domain.RatingMin || v > domain.RatingMax {
		return nil, false
	}
	return &v, true
}

// ---- handlers ----

func (h *Handlers) listHotels(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 50, 200)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return
	}
	q := domain.HotelsQuery{Limit: limit}
	if loc := r.URL.Query().Get("location"); loc != "" {
		q.Location = &loc
	}

	hotels, err := h.Q.ListHotels(r.Context(), q)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "listing hotels failed")
		return
	}
	out := make([]hotelDTO, 0, len(hotels))
	for _, hh := range hotels {
		out = append(out, toHotelDTO(hh))
	}
	writeJSON(w, r, out)
}

func (h *Handlers) getHotel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	hotel, err := h.Q.GetHotel(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "hotel not found")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "reading hotel failed")
		return
	}
	writeJSON(w, r, toHotelDTO(hotel))
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}

	limit, ok := parseLimit(r, app.DefaultReviewLimit, 200)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return
	}
	minR, ok := parseRating(r, "rating_min")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid rating_min", "rating_min must be a number between 1 and 5")
		return
	}
	maxR, ok := parseRating(r, "rating_max")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid rating_max", "rating_max must be a number between 1 and 5")
		return
	}

	f := domain.ReviewFilter{HotelID: &id, MinRating: minR, MaxRating: maxR, Limit: limit}
	if q := r.URL.Query().Get("q"); q != "" {
		f.Contains = &q
	}

	// 404 for an unknown hotel rather than an empty list
	if _, err := h.Q.GetHotel(r.Context(), id); errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "hotel not found")
		return
	}

	reviews, err := h.Q.Reviews(r.Context(), f)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "reading reviews failed")
		return
	}
	out := make([]reviewDTO, 0, len(reviews))
	for _, rv := range reviews {
		out = append(out, toReviewDTO(rv))
	}
	writeJSON(w, r, out)
}

func (h *Handlers) getSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	if _, err := h.Q.GetHotel(r.Context(), id); errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "hotel not found")
		return
	}
	sum, err := h.Q.Summary(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "summarising reviews failed")
		return
	}
	writeJSON(w, r, summaryDTO{HotelID: sum.HotelID, Total: sum.Total, AverageRating: sum.AverageRating, Sentiments: sum.Sentiments})
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 20, 100)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
		return
	}
	jobs, err := h.Q.Jobs(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "listing jobs failed")
		return
	}
	out := make([]jobDTO, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobDTO(j))
	}
	writeJSON(w, r, out)
}
