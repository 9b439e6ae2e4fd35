package sqlite

const schemaSQL = `
CREATE TABLE IF NOT EXISTS hotels (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  source_url   TEXT NOT NULL UNIQUE,
  name         TEXT NOT NULL,
  location     TEXT,
  rating       REAL,
  review_count INTEGER,
  created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reviews (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  hotel_id   INTEGER NOT NULL REFERENCES hotels(id),
  dedup_key  TEXT NOT NULL,
  reviewer   TEXT,
  title      TEXT,
  body       TEXT,
  rating     REAL,
  written_at TEXT,
  sentiment  TEXT,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (hotel_id, dedup_key)
);
CREATE INDEX IF NOT EXISTS idx_reviews_hotel_rating ON reviews (hotel_id, rating);

CREATE TABLE IF NOT EXISTS scrape_jobs (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  target_url  TEXT NOT NULL,
  kind        TEXT NOT NULL,
  strategy    TEXT NOT NULL DEFAULT '',
  status      TEXT NOT NULL,
  error       TEXT,
  stored      INTEGER NOT NULL DEFAULT 0,
  skipped     INTEGER NOT NULL DEFAULT 0,
  started_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  finished_at TIMESTAMP
);
`

const upsertHotelSQL = `
INSERT INTO hotels (source_url, name, location, rating, review_count)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (source_url) DO UPDATE SET
  name         = excluded.name,
  location     = COALESCE(excluded.location, hotels.location),
  rating       = COALESCE(excluded.rating, hotels.rating),
  review_count = COALESCE(excluded.review_count, hotels.review_count),
  updated_at   = CURRENT_TIMESTAMP
`

const insertReviewsPrefix = `
INSERT INTO reviews (hotel_id, dedup_key, reviewer, title, body, rating, written_at, sentiment)
VALUES `

// Re-scrapes keep the older non-NULL value for fields the page no longer shows.
const insertReviewsOnDup = ` ON CONFLICT (hotel_id, dedup_key) DO UPDATE SET
  reviewer   = COALESCE(excluded.reviewer, reviews.reviewer),
  title      = COALESCE(excluded.title, reviews.title),
  body       = COALESCE(excluded.body, reviews.body),
  rating     = COALESCE(excluded.rating, reviews.rating),
  written_at = COALESCE(excluded.written_at, reviews.written_at),
  sentiment  = COALESCE(excluded.sentiment, reviews.sentiment)
`

const createJobSQL = `
INSERT INTO scrape_jobs (target_url, kind, strategy, status) VALUES (?, ?, ?, ?)
`

const finishJobSQL = `
UPDATE scrape_jobs
SET status = ?, strategy = ?, error = ?, stored = ?, skipped = ?, finished_at = CURRENT_TIMESTAMP
WHERE id = ?
`

const selectHotelCols = `id, source_url, name, location, rating, review_count`

const selectReviewCols = `id, hotel_id, dedup_key, reviewer, title, body, rating, written_at, sentiment`

const reviewTotalsSQL = `
SELECT COUNT(*), AVG(rating) FROM reviews WHERE hotel_id = ?
`

const sentimentCountsSQL = `
SELECT COALESCE(sentiment, 'unknown'), COUNT(*)
FROM reviews WHERE hotel_id = ?
GROUP BY 1
`
