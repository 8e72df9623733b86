package models

import (
	"time"

	"github.com/google/uuid"
)

// RunSummary aggregates the outcome of a single collection run.
type RunSummary struct {
	RunID             uuid.UUID `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	TotalPages        int       `json:"total_pages"`
	PagesVisited      int       `json:"pages_visited"`
	NewRecords        int       `json:"new_records"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	ParseWarnings     int       `json:"parse_warnings"`
	Aborted           bool      `json:"aborted"`
	AbortReason       string    `json:"abort_reason,omitempty"`
}
