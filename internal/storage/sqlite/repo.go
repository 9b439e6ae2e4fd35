package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tripscraper/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// Open opens (or creates) the SQLite database at path with foreign keys on.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Serialize writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates the schema when missing.
func (r *Repo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

func (r *Repo) UpsertHotel(ctx context.Context, h domain.Hotel) (int64, error) {
	_, err := r.db.ExecContext(ctx, upsertHotelSQL,
		h.SourceURL,
		h.Name,
		valStr(h.Location),
		valF64(h.Rating),
		valInt(h.ReviewCount),
	)
	if err != nil {
		return 0, err
	}
	// The upsert may have updated an existing row, so LastInsertId is not
	// reliable here; read the id back by the natural key.
	var id int64
	err = r.db.QueryRowContext(ctx, `SELECT id FROM hotels WHERE source_url = ?`, h.SourceURL).Scan(&id)
	return id, err
}

func (r *Repo) InsertReviews(ctx context.Context, hotelID int64, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*8)
	for _, rv := range rs {
		values = append(values, "(?,?,?,?,?,?,?,?)")
		args = append(args,
			hotelID,
			rv.DedupKey,
			valStr(rv.Reviewer),
			valStr(rv.Title),
			valStr(rv.Body),
			valF64(rv.Rating),
			valStr(rv.WrittenAt),
			valStr(rv.Sentiment),
		)
	}
	sqlStr := insertReviewsPrefix + strings.Join(values, ",") + insertReviewsOnDup
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *Repo) CreateJob(ctx context.Context, j domain.ScrapeJob) (int64, error) {
	res, err := r.db.ExecContext(ctx, createJobSQL, j.TargetURL, string(j.Kind), j.Strategy, string(j.Status))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) FinishJob(ctx context.Context, id int64, res domain.JobResult) error {
	var errText any
	if res.Err != nil {
		errText = res.Err.Error()
	}
	_, err := r.db.ExecContext(ctx, finishJobSQL,
		string(res.Status), res.Strategy, errText, res.Stored, res.Skipped, id)
	return err
}

func (r *Repo) GetHotel(ctx context.Context, id int64) (domain.Hotel, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectHotelCols+` FROM hotels WHERE id = ?`, id)
	return scanHotel(row)
}

func (r *Repo) GetHotelByURL(ctx context.Context, url string) (domain.Hotel, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectHotelCols+` FROM hotels WHERE source_url = ?`, url)
	return scanHotel(row)
}

func scanHotel(row *sql.Row) (domain.Hotel, error) {
	var h domain.Hotel
	var location sql.NullString
	var rating sql.NullFloat64
	var count sql.NullInt64
	if err := row.Scan(&h.ID, &h.SourceURL, &h.Name, &location, &rating, &count); err != nil {
		if err == sql.ErrNoRows {
			return domain.Hotel{}, domain.ErrNotFound
		}
		return domain.Hotel{}, err
	}
	if location.Valid {
		s := location.String
		h.Location = &s
	}
	if rating.Valid {
		f := rating.Float64
		h.Rating = &f
	}
	if count.Valid {
		n := int(count.Int64)
		h.ReviewCount = &n
	}
	return h, nil
}

func (r *Repo) ListHotels(ctx context.Context, q domain.HotelsQuery) ([]domain.Hotel, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + selectHotelCols + ` FROM hotels`
	args := []any{}
	if q.Location != nil {
		query += ` WHERE location LIKE ?`
		args = append(args, "%"+*q.Location+"%")
	}
	query += ` ORDER BY name LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Hotel
	for rows.Next() {
		var h domain.Hotel
		var location sql.NullString
		var rating sql.NullFloat64
		var count sql.NullInt64
		if err := rows.Scan(&h.ID, &h.SourceURL, &h.Name, &location, &rating, &count); err != nil {
			return nil, err
		}
		if location.Valid {
			s := location.String
			h.Location = &s
		}
		if rating.Valid {
			f := rating.Float64
			h.Rating = &f
		}
		if count.Valid {
			n := int(count.Int64)
			h.ReviewCount = &n
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) QueryReviews(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var conds []string
	var args []any
	if f.HotelID != nil {
		conds = append(conds, "hotel_id = ?")
		args = append(args, *f.HotelID)
	}
	if f.MinRating != nil {
		conds = append(conds, "rating >= ?")
		args = append(args, *f.MinRating)
	}
	if f.MaxRating != nil {
		conds = append(conds, "rating <= ?")
		args = append(args, *f.MaxRating)
	}
	if f.Contains != nil {
		conds = append(conds, "body LIKE ?")
		args = append(args, "%"+*f.Contains+"%")
	}
	query := `SELECT ` + selectReviewCols + ` FROM reviews`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		var reviewer, title, body, writtenAt, sentiment sql.NullString
		var rating sql.NullFloat64
		if err := rows.Scan(
			&rv.ID, &rv.HotelID, &rv.DedupKey,
			&reviewer, &title, &body, &rating, &writtenAt, &sentiment,
		); err != nil {
			return nil, err
		}
		if reviewer.Valid {
			s := reviewer.String
			rv.Reviewer = &s
		}
		if title.Valid {
			s := title.String
			rv.Title = &s
		}
		if body.Valid {
			s := body.String
			rv.Body = &s
		}
		if rating.Valid {
			fl := rating.Float64
			rv.Rating = &fl
		}
		if writtenAt.Valid {
			s := writtenAt.String
			rv.WrittenAt = &s
		}
		if sentiment.Valid {
			s := sentiment.String
			rv.Sentiment = &s
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) ReviewSummary(ctx context.Context, hotelID int64) (domain.ReviewSummary, error) {
	sum := domain.ReviewSummary{HotelID: hotelID, Sentiments: map[string]int{}}

	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, reviewTotalsSQL, hotelID).Scan(&sum.Total, &avg); err != nil {
		return domain.ReviewSummary{}, err
	}
	if avg.Valid {
		f := avg.Float64
		sum.AverageRating = &f
	}

	rows, err := r.db.QueryContext(ctx, sentimentCountsSQL, hotelID)
	if err != nil {
		return domain.ReviewSummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return domain.ReviewSummary{}, err
		}
		sum.Sentiments[label] = n
	}
	return sum, rows.Err()
}

func (r *Repo) ListJobs(ctx context.Context, limit int) ([]domain.ScrapeJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, target_url, kind, strategy, status, error, stored, skipped, started_at, finished_at
FROM scrape_jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScrapeJob
	for rows.Next() {
		var j domain.ScrapeJob
		var kind, status string
		var errText sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(
			&j.ID, &j.TargetURL, &kind, &j.Strategy, &status,
			&errText, &j.Stored, &j.Skipped, &j.StartedAt, &finished,
		); err != nil {
			return nil, err
		}
		j.Kind = domain.JobKind(kind)
		j.Status = domain.JobStatus(status)
		if errText.Valid {
			s := errText.String
			j.Error = &s
		}
		if finished.Valid {
			t := finished.Time
			j.FinishedAt = &t
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
