package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SearchEntry is one search the user ran, with the total it matched.
type SearchEntry struct {
	ID        int64
	CreatedAt time.Time
	Query     string
	DateFrom  string
	DateTo    string
	SortBy    string
	SortOrder string
	Logic     string
	Total     int
}

// Batch statuses.
const (
	BatchPending   = "pending"
	BatchCompleted = "completed"
)

// Batch is an upload batch the server is still processing, tracked so its
// status can be checked later.
type Batch struct {
	ID           string
	TotalFiles   int
	Status       string
	SuccessCount int
	ErrorCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
