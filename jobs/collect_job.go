package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/ipo-collector/models"
	"github.com/fenilmodi00/ipo-collector/services"
	"github.com/sirupsen/logrus"
)

// CollectRecentIPOsJob runs one collection pass over the recent-IPO listings
// and logs a structured summary. The optional link verifier runs only after
// a clean run.
type CollectRecentIPOsJob struct {
	Collector  *services.Collector
	Verifier   *services.LinkVerifier
	RunTimeout time.Duration
}

// NewCollectRecentIPOsJob creates the job. Verifier may be nil.
func NewCollectRecentIPOsJob(collector *services.Collector, verifier *services.LinkVerifier, runTimeout time.Duration) *CollectRecentIPOsJob {
	return &CollectRecentIPOsJob{
		Collector:  collector,
		Verifier:   verifier,
		RunTimeout: runTimeout,
	}
}

// Run executes the collection run and returns its summary.
func (j *CollectRecentIPOsJob) Run() *models.RunSummary {
	logrus.Info("Starting Recent IPO Collection Job")

	ctx, cancel := context.WithTimeout(context.Background(), j.RunTimeout)
	defer cancel()

	summary, err := j.Collector.Run(ctx)
	if err != nil {
		logrus.Errorf("Recent IPO Collection Job aborted: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"run_id":             summary.RunID,
		"total_pages":        summary.TotalPages,
		"pages_visited":      summary.PagesVisited,
		"new_records":        summary.NewRecords,
		"duplicates_skipped": summary.DuplicatesSkipped,
		"parse_warnings":     summary.ParseWarnings,
		"aborted":            summary.Aborted,
		"duration":           summary.FinishedAt.Sub(summary.StartedAt),
	}).Infof("Recent IPO Collection Job completed: %d new, %d duplicates skipped, %d parse warnings across %d pages",
		summary.NewRecords, summary.DuplicatesSkipped, summary.ParseWarnings, summary.PagesVisited)

	if err == nil && j.Verifier != nil && summary.NewRecords > 0 {
		j.Verifier.VerifyNewLinks(j.Collector.CollectedRecords())
	}

	return summary
}
