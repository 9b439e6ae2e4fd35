package domain

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type JobKind string

const (
	JobHotel  JobKind = "hotel"
	JobRegion JobKind = "region"
)

// ScrapeJob is one unit of fetch+extract+store work for a single target.
type ScrapeJob struct {
	ID         int64
	TargetURL  string
	Kind       JobKind
	Strategy   string // static|browser, the strategy that actually served the job
	Status     JobStatus
	Error      *string
	Stored     int // reviews written for this target
	Skipped    int // malformed reviews dropped during extraction
	StartedAt  time.Time
	FinishedAt *time.Time
}

// JobResult carries the terminal state of a job back to the store.
type JobResult struct {
	Status   JobStatus
	Strategy string
	Err      error
	Stored   int
	Skipped  int
}
