package services

import (
	"context"
	"errors"
	"time"

	"github.com/fenilmodi00/ipo-collector/config"
	"github.com/fenilmodi00/ipo-collector/models"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Fetcher retrieves the raw markup of one listing page.
type Fetcher interface {
	FetchPage(ctx context.Context, pageNumber int) (string, error)
}

// Collector orchestrates the collection pipeline: it walks all listing pages
// in order, filters parsed candidates against the dedup store, and flushes
// the accepted records to the sink in one append at the end of the run.
//
// On a terminal fetch failure the run is aborted, but records accepted before
// the failing page are still flushed; failure is page-scoped, not run-scoped.
type Collector struct {
	configuration  *config.CollectorConfiguration
	fetcher        Fetcher
	dynamicFetcher Fetcher // optional fallback for client-rendered pages
	parser         *ListingParser
	store          *DedupStore
	sink           *RecordSink
	sleep          func(time.Duration) // injectable politeness delay

	accepted []models.IPORecord
}

// NewCollector wires the pipeline components together.
func NewCollector(configuration *config.CollectorConfiguration, fetcher Fetcher, parser *ListingParser, store *DedupStore, sink *RecordSink) *Collector {
	return &Collector{
		configuration: configuration,
		fetcher:       fetcher,
		parser:        parser,
		store:         store,
		sink:          sink,
		sleep:         time.Sleep,
	}
}

// WithDynamicFallback enables a rendered fetch when the first page carries no
// listing table.
func (c *Collector) WithDynamicFallback(dynamicFetcher Fetcher) *Collector {
	c.dynamicFetcher = dynamicFetcher
	return c
}

// WithSleep overrides the politeness delay function. Tests use this to count
// delays without waiting.
func (c *Collector) WithSleep(sleep func(time.Duration)) *Collector {
	c.sleep = sleep
	return c
}

// CollectedRecords returns the records durably appended by the last run, in
// page-traversal order.
func (c *Collector) CollectedRecords() []models.IPORecord {
	return c.accepted
}

// Run executes one collection run and always returns a summary, also on
// abort. The returned error is non-nil exactly when the run aborted.
func (c *Collector) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
	c.accepted = nil

	logger := logrus.WithFields(logrus.Fields{
		"component": "Collector",
		"run_id":    summary.RunID,
	})
	logger.Info("Starting recent-IPO collection run")

	// The dedup store must load cleanly before any network traffic; an
	// ambiguous processed set risks mass re-collection.
	if err := c.store.Load(); err != nil {
		return c.abort(summary, nil, err)
	}

	seen := make(map[string]struct{})
	var buffered []models.IPORecord
	useDynamic := false

	firstPage, err := c.fetchWith(ctx, 1, useDynamic)
	if err != nil {
		return c.abort(summary, buffered, err)
	}
	summary.PagesVisited++

	parsed, err := c.parser.ParsePage(firstPage)
	if errors.Is(err, ErrNoListingTable) && c.dynamicFetcher != nil {
		logger.Warn("First page carries no listing table, retrying with rendered fetch")
		useDynamic = true

		firstPage, err = c.fetchWith(ctx, 1, useDynamic)
		if err != nil {
			return c.abort(summary, buffered, err)
		}
		parsed, err = c.parser.ParsePage(firstPage)
	}

	switch {
	case errors.Is(err, ErrNoListingTable):
		logger.Warn("First page carries no listing table, treating it as empty")
		parsed = &ParsedPage{}
	case err != nil:
		return c.abort(summary, buffered, err)
	}

	totalPages := parsed.TotalPages
	if totalPages < 1 {
		logger.Warn("Total page count could not be determined from first page, assuming a single page")
		totalPages = 1
	}
	summary.TotalPages = totalPages
	logger.WithField("total_pages", totalPages).Info("Determined page count from pagination control")

	buffered = c.filterCandidates(parsed, seen, buffered, summary)

	for page := 2; page <= totalPages; page++ {
		c.sleep(c.configuration.PolitenessDelay)

		rawPage, fetchErr := c.fetchWith(ctx, page, useDynamic)
		if fetchErr != nil {
			return c.abort(summary, buffered, fetchErr)
		}
		summary.PagesVisited++

		pageParsed, parseErr := c.parser.ParsePage(rawPage)
		if errors.Is(parseErr, ErrNoListingTable) {
			logger.WithField("page", page).Warn("Page carries no listing table, skipping")
			continue
		}
		if parseErr != nil {
			return c.abort(summary, buffered, parseErr)
		}

		buffered = c.filterCandidates(pageParsed, seen, buffered, summary)

		logger.WithFields(logrus.Fields{
			"page":        page,
			"total_pages": totalPages,
		}).Infof("Processed page %d/%d", page, totalPages)
	}

	if err := c.flush(buffered, summary); err != nil {
		logServiceError(err)
		summary.Aborted = true
		summary.AbortReason = err.Error()
		summary.FinishedAt = time.Now()
		return summary, err
	}

	summary.FinishedAt = time.Now()
	logger.WithFields(logrus.Fields{
		"pages_visited":      summary.PagesVisited,
		"new_records":        summary.NewRecords,
		"duplicates_skipped": summary.DuplicatesSkipped,
		"parse_warnings":     summary.ParseWarnings,
	}).Info("Collection run finished")

	return summary, nil
}

// fetchWith routes the fetch through the dynamic fetcher once the first page
// turned out to need rendering.
func (c *Collector) fetchWith(ctx context.Context, page int, useDynamic bool) (string, error) {
	if useDynamic && c.dynamicFetcher != nil {
		return c.dynamicFetcher.FetchPage(ctx, page)
	}
	return c.fetcher.FetchPage(ctx, page)
}

// filterCandidates applies the dedup filter to one page's candidates.
// Already-collected links are dropped silently; that is the expected
// steady-state, not an error.
func (c *Collector) filterCandidates(parsed *ParsedPage, seen map[string]struct{}, buffered []models.IPORecord, summary *models.RunSummary) []models.IPORecord {
	summary.ParseWarnings += parsed.Warnings

	for _, candidate := range parsed.Records {
		if _, duplicateInRun := seen[candidate.CompanyLink]; duplicateInRun || c.store.Contains(candidate.CompanyLink) {
			summary.DuplicatesSkipped++
			logrus.WithFields(logrus.Fields{
				"component": "Collector",
				"company":   candidate.Company,
			}).Debug("Candidate already processed, skipping")
			continue
		}

		seen[candidate.CompanyLink] = struct{}{}
		buffered = append(buffered, candidate)
	}

	return buffered
}

// flush appends the buffered records to the sink and, only after the append
// durably succeeded, registers their links in the dedup store and persists
// it. A failed append leaves the links unmarked so a future run retries them.
func (c *Collector) flush(buffered []models.IPORecord, summary *models.RunSummary) error {
	if len(buffered) == 0 {
		logrus.WithField("component", "Collector").Info("No new IPOs found")
		return nil
	}

	if err := c.sink.Append(buffered); err != nil {
		return err
	}

	for _, record := range buffered {
		c.store.Add(record.CompanyLink)
	}
	if err := c.store.Persist(); err != nil {
		return err
	}

	c.accepted = buffered
	summary.NewRecords = len(buffered)
	return nil
}

// abort flushes whatever was accepted before the failure, then finalizes the
// summary as aborted. Partial progress is never rolled back.
func (c *Collector) abort(summary *models.RunSummary, buffered []models.IPORecord, cause error) (*models.RunSummary, error) {
	if flushErr := c.flushPartial(buffered, summary); flushErr != nil {
		logrus.WithFields(logrus.Fields{
			"component": "Collector",
			"run_id":    summary.RunID,
		}).WithError(flushErr).Error("Failed to flush partial progress while aborting")
	}

	logServiceError(cause)

	summary.Aborted = true
	summary.AbortReason = cause.Error()
	summary.FinishedAt = time.Now()

	logrus.WithFields(logrus.Fields{
		"component":     "Collector",
		"run_id":        summary.RunID,
		"pages_visited": summary.PagesVisited,
		"new_records":   summary.NewRecords,
	}).WithError(cause).Error("Collection run aborted")

	return summary, cause
}

// logServiceError emits the error taxonomy fields when the cause carries them.
func logServiceError(err error) {
	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) {
		serviceErr.LogError()
	}
}

// flushPartial flushes accepted records while aborting, without the
// no-new-IPOs logging of a clean run.
func (c *Collector) flushPartial(buffered []models.IPORecord, summary *models.RunSummary) error {
	if len(buffered) == 0 {
		return nil
	}
	return c.flush(buffered, summary)
}
