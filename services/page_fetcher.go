package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fenilmodi00/ipo-collector/config"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/sirupsen/logrus"
)

// PageFetcher retrieves one listing page per call. Transient failures
// (network errors, timeouts, 5xx, rate-limit responses) are retried with
// exponential backoff; other client errors fail immediately.
type PageFetcher struct {
	listingsURL string
	client      *http.Client
	retryPolicy shared.RetryPolicy
}

// NewPageFetcher creates a page fetcher from the collector configuration.
func NewPageFetcher(configuration *config.CollectorConfiguration) *PageFetcher {
	return &PageFetcher{
		listingsURL: configuration.ListingsURL,
		client:      shared.NewOptimizedHTTPClient(configuration.HTTPRequestTimeout),
		retryPolicy: shared.NewDefaultRetryPolicy(configuration.MaxRetryAttempts),
	}
}

// NewPageFetcherWithRetryPolicy creates a page fetcher with an explicit retry
// policy. Tests use this to inject a fake sleep.
func NewPageFetcherWithRetryPolicy(configuration *config.CollectorConfiguration, retryPolicy shared.RetryPolicy) *PageFetcher {
	return &PageFetcher{
		listingsURL: configuration.ListingsURL,
		client:      shared.NewOptimizedHTTPClient(configuration.HTTPRequestTimeout),
		retryPolicy: retryPolicy,
	}
}

// FetchPage retrieves the raw markup of the given listing page. The returned
// error is a terminal ServiceError carrying the page number and last cause.
func (f *PageFetcher) FetchPage(ctx context.Context, pageNumber int) (string, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "PageFetcher",
		"page":      pageNumber,
	})

	pageURL, err := f.buildPageURL(pageNumber)
	if err != nil {
		return "", shared.NewPermanentFetchError(pageNumber,
			fmt.Sprintf("malformed listings URL %q: %v", f.listingsURL, err), err)
	}

	var rawPage string
	err = f.retryPolicy.Execute(fmt.Sprintf("fetch_page_%d", pageNumber), func() error {
		body, attemptErr := f.fetchOnce(ctx, pageURL, pageNumber)
		if attemptErr != nil {
			return attemptErr
		}
		rawPage = body
		return nil
	})
	if err != nil {
		logger.WithError(err).Error("Page fetch failed terminally")
		return "", err
	}

	logger.WithField("bytes", len(rawPage)).Debug("Fetched listing page")
	return rawPage, nil
}

// buildPageURL derives the request URL from the base listings URL and the
// page number, preserving any query parameters the base URL carries.
func (f *PageFetcher) buildPageURL(pageNumber int) (string, error) {
	parsed, err := url.Parse(f.listingsURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("listings URL is not absolute")
	}

	query := parsed.Query()
	query.Set("page", strconv.Itoa(pageNumber))
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// fetchOnce performs a single GET attempt and classifies the outcome.
func (f *PageFetcher) fetchOnce(ctx context.Context, pageURL string, pageNumber int) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", shared.NewPermanentFetchError(pageNumber,
			fmt.Sprintf("building request for %s: %v", pageURL, err), err)
	}
	shared.SetBrowserLikeHeaders(request, "text/html,application/xhtml+xml")

	response, err := f.client.Do(request)
	if err != nil {
		return "", shared.NewTransientFetchError(pageNumber,
			fmt.Sprintf("request to %s failed: %v", pageURL, err), err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(response.Body)
		if readErr != nil {
			return "", shared.NewTransientFetchError(pageNumber,
				fmt.Sprintf("reading response body from %s: %v", pageURL, readErr), readErr)
		}
		return string(body), nil

	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500:
		return "", shared.NewTransientFetchError(pageNumber,
			fmt.Sprintf("%s returned HTTP %d: %s", pageURL, response.StatusCode, http.StatusText(response.StatusCode)), nil)

	case response.StatusCode >= 400:
		return "", shared.NewPermanentFetchError(pageNumber,
			fmt.Sprintf("%s returned HTTP %d: %s", pageURL, response.StatusCode, http.StatusText(response.StatusCode)), nil)

	default:
		return "", shared.NewTransientFetchError(pageNumber,
			fmt.Sprintf("%s returned unexpected HTTP %d", pageURL, response.StatusCode), nil)
	}
}

// Close releases idle connections held by the fetcher's HTTP client.
func (f *PageFetcher) Close() {
	shared.CleanupHTTPClient(f.client)
}
