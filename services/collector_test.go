package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-collector/config"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPipeline struct {
	collector  *Collector
	cfg        *config.CollectorConfiguration
	sleepCount int
}

func newTestPipeline(t *testing.T, serverURL, dir string) *testPipeline {
	t.Helper()

	cfg := config.NewDefaultCollectorConfiguration()
	cfg.ListingsURL = serverURL + "/ipo/recent/"
	cfg.OutputFile = filepath.Join(dir, "ipo_data.xlsx")
	cfg.ProcessedFile = filepath.Join(dir, "processed_ipos.json")
	cfg.MaxRetryAttempts = 3
	cfg.HTTPRequestTimeout = 2 * time.Second

	fetcher := NewPageFetcherWithRetryPolicy(cfg, shared.RetryPolicy{
		MaxAttempts:    cfg.MaxRetryAttempts,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  2.0,
		Retryable:      shared.IsRetryableError,
		Sleep:          func(time.Duration) {},
	})
	t.Cleanup(fetcher.Close)

	parser, err := NewListingParser(cfg.ListingsURL)
	require.NoError(t, err)

	pipeline := &testPipeline{cfg: cfg}
	pipeline.collector = NewCollector(cfg, fetcher, parser, NewDedupStore(cfg.ProcessedFile), NewRecordSink(cfg.OutputFile)).
		WithSleep(func(time.Duration) { pipeline.sleepCount++ })

	return pipeline
}

// pageServer serves canned listing pages keyed by the page query parameter
// and counts requests per page.
func pageServer(pages map[string]string, requestCounts *sync.Map) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if requestCounts != nil {
			count, _ := requestCounts.LoadOrStore(page, new(int64))
			atomic.AddInt64(count.(*int64), 1)
		}
		body, ok := pages[page]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
}

func paginationControl(totalPages int) string {
	control := `<div class="pagination">`
	for page := 1; page <= totalPages; page++ {
		control += fmt.Sprintf(`<a href="?page=%d">%d</a>`, page, page)
	}
	return control + `</div>`
}

func standardRow(name, slug string) string {
	return listingRow(name, "/company/"+slug+"/", "12 Jun 2024", "1,000.00", "100", "110", "⇡10.00%")
}

func TestCollectorTwoPageScenario(t *testing.T) {
	pages := map[string]string{
		"1": listingPage(standardRow("Alpha Ltd", "ALPHA")+standardRow("Beta Ltd", "BETA"), paginationControl(2)),
		"2": listingPage(standardRow("Gamma Ltd", "GAMMA"), paginationControl(2)),
	}
	server := pageServer(pages, nil)
	defer server.Close()

	dir := t.TempDir()

	// First run collects A, B, C in page-traversal order.
	pipeline := newTestPipeline(t, server.URL, dir)
	summary, err := pipeline.collector.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Aborted)
	assert.Equal(t, 2, summary.TotalPages)
	assert.Equal(t, 2, summary.PagesVisited)
	assert.Equal(t, 3, summary.NewRecords)
	assert.Equal(t, 0, summary.DuplicatesSkipped)
	assert.Equal(t, 1, pipeline.sleepCount, "one politeness delay for a two-page run")

	rows := readRows(t, pipeline.cfg.OutputFile)
	require.Len(t, rows, 4)
	assert.Equal(t, "Alpha Ltd", rows[1][0])
	assert.Equal(t, "Beta Ltd", rows[2][0])
	assert.Equal(t, "Gamma Ltd", rows[3][0])

	store := NewDedupStore(pipeline.cfg.ProcessedFile)
	require.NoError(t, store.Load())
	assert.Equal(t, 3, store.Len())

	// Second run against the unchanged source yields zero new rows.
	second := newTestPipeline(t, server.URL, dir)
	secondSummary, err := second.collector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, secondSummary.NewRecords)
	assert.Equal(t, 3, secondSummary.DuplicatesSkipped)
	assert.Len(t, readRows(t, second.cfg.OutputFile), 4, "output unchanged by the idempotent second run")

	reloaded := NewDedupStore(second.cfg.ProcessedFile)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 3, reloaded.Len())
}

func TestCollectorDropsDuplicateAppearingOnTwoPages(t *testing.T) {
	pages := map[string]string{
		"1": listingPage(standardRow("Alpha Ltd", "ALPHA"), paginationControl(2)),
		"2": listingPage(standardRow("Alpha Ltd", "ALPHA")+standardRow("Beta Ltd", "BETA"), paginationControl(2)),
	}
	server := pageServer(pages, nil)
	defer server.Close()

	pipeline := newTestPipeline(t, server.URL, t.TempDir())
	summary, err := pipeline.collector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NewRecords)
	assert.Equal(t, 1, summary.DuplicatesSkipped)

	rows := readRows(t, pipeline.cfg.OutputFile)
	require.Len(t, rows, 3)
	assert.Equal(t, "Alpha Ltd", rows[1][0])
	assert.Equal(t, "Beta Ltd", rows[2][0])
}

func TestCollectorPaginationTermination(t *testing.T) {
	const totalPages = 4
	pages := make(map[string]string, totalPages)
	for page := 1; page <= totalPages; page++ {
		pages[fmt.Sprintf("%d", page)] = listingPage(
			standardRow(fmt.Sprintf("Company %d", page), fmt.Sprintf("CMP%d", page)),
			paginationControl(totalPages),
		)
	}

	var requestCounts sync.Map
	server := pageServer(pages, &requestCounts)
	defer server.Close()

	pipeline := newTestPipeline(t, server.URL, t.TempDir())
	summary, err := pipeline.collector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, totalPages, summary.TotalPages)
	assert.Equal(t, totalPages, summary.PagesVisited)
	assert.Equal(t, totalPages, summary.NewRecords)
	assert.Equal(t, totalPages-1, pipeline.sleepCount)

	for page := 1; page <= totalPages; page++ {
		count, ok := requestCounts.Load(fmt.Sprintf("%d", page))
		require.True(t, ok, "page %d was fetched", page)
		assert.EqualValues(t, 1, atomic.LoadInt64(count.(*int64)), "page %d fetched exactly once", page)
	}
}

func TestCollectorAssumesSinglePageWhenPaginationMissing(t *testing.T) {
	pages := map[string]string{
		"1": listingPage(standardRow("Alpha Ltd", "ALPHA"), ""),
	}
	server := pageServer(pages, nil)
	defer server.Close()

	pipeline := newTestPipeline(t, server.URL, t.TempDir())
	summary, err := pipeline.collector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TotalPages)
	assert.Equal(t, 1, summary.PagesVisited)
	assert.Equal(t, 0, pipeline.sleepCount)
	assert.Equal(t, 1, summary.NewRecords)
}

func TestCollectorAbortsAfterRetryBudgetExhausted(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	pipeline := newTestPipeline(t, server.URL, t.TempDir())
	summary, err := pipeline.collector.Run(context.Background())
	require.Error(t, err)

	assert.True(t, shared.HasErrorCode(err, shared.ErrorCodeTransientFetch))
	assert.True(t, summary.Aborted)
	assert.NotEmpty(t, summary.AbortReason)
	assert.EqualValues(t, 3, atomic.LoadInt64(&requests), "exactly the configured attempt budget")
	assert.Equal(t, 0, summary.NewRecords)

	_, statErr := os.Stat(pipeline.cfg.OutputFile)
	assert.True(t, os.IsNotExist(statErr), "no output written for the failed page")
}

func TestCollectorKeepsPartialProgressOnAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(listingPage(standardRow("Alpha Ltd", "ALPHA")+standardRow("Beta Ltd", "BETA"), paginationControl(2))))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	pipeline := newTestPipeline(t, server.URL, t.TempDir())
	summary, err := pipeline.collector.Run(context.Background())
	require.Error(t, err)

	assert.True(t, summary.Aborted)
	assert.Equal(t, 2, summary.NewRecords, "records accepted before the failing page stay persisted")

	rows := readRows(t, pipeline.cfg.OutputFile)
	require.Len(t, rows, 3)
	assert.Equal(t, "Alpha Ltd", rows[1][0])
	assert.Equal(t, "Beta Ltd", rows[2][0])

	store := NewDedupStore(pipeline.cfg.ProcessedFile)
	require.NoError(t, store.Load())
	assert.Equal(t, 2, store.Len())
}

func TestCollectorRefusesCorruptProcessedSetBeforeAnyFetch(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.Write([]byte(listingPage(standardRow("Alpha Ltd", "ALPHA"), "")))
	}))
	defer server.Close()

	dir := t.TempDir()
	pipeline := newTestPipeline(t, server.URL, dir)
	require.NoError(t, os.WriteFile(pipeline.cfg.ProcessedFile, []byte("{corrupt"), 0o644))

	summary, err := pipeline.collector.Run(context.Background())
	require.Error(t, err)

	assert.True(t, shared.HasErrorCode(err, shared.ErrorCodeCorruptState))
	assert.True(t, summary.Aborted)
	assert.EqualValues(t, 0, atomic.LoadInt64(&requests), "no HTTP request issued under ambiguous state")

	_, statErr := os.Stat(pipeline.cfg.OutputFile)
	assert.True(t, os.IsNotExist(statErr), "tabular output untouched")
}

func TestCollectorLeavesLinksUnmarkedWhenSinkAppendFails(t *testing.T) {
	pages := map[string]string{
		"1": listingPage(standardRow("Alpha Ltd", "ALPHA"), ""),
	}
	server := pageServer(pages, nil)
	defer server.Close()

	dir := t.TempDir()
	pipeline := newTestPipeline(t, server.URL, dir)
	// A directory at the output path makes the append unwritable.
	require.NoError(t, os.Mkdir(pipeline.cfg.OutputFile, 0o755))

	summary, err := pipeline.collector.Run(context.Background())
	require.Error(t, err)

	assert.True(t, shared.HasErrorCode(err, shared.ErrorCodeSinkWrite))
	assert.True(t, summary.Aborted)
	assert.Equal(t, 0, summary.NewRecords)

	_, statErr := os.Stat(pipeline.cfg.ProcessedFile)
	assert.True(t, os.IsNotExist(statErr), "links stay unmarked when the append fails")
}

func TestCollectorTreatsPageWithoutTableAsEmpty(t *testing.T) {
	pages := map[string]string{
		"1": listingPage(standardRow("Alpha Ltd", "ALPHA"), paginationControl(2)),
		"2": `<html><body><p>nothing listed here</p></body></html>`,
	}
	server := pageServer(pages, nil)
	defer server.Close()

	pipeline := newTestPipeline(t, server.URL, t.TempDir())
	summary, err := pipeline.collector.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Aborted)
	assert.Equal(t, 1, summary.NewRecords)
	assert.Equal(t, 2, summary.PagesVisited)
}
