package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/fenilmodi00/ipo-collector/config"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/sirupsen/logrus"
)

// DynamicPageFetcher renders a listing page in headless Chrome before handing
// the markup to the parser. Used only as a fallback when the static fetch of
// the first page yields no listing table, which happens when the source site
// moves the table behind client-side rendering.
type DynamicPageFetcher struct {
	listingsURL string
	timeout     time.Duration
}

// NewDynamicPageFetcher creates a rendered-page fetcher from the collector
// configuration.
func NewDynamicPageFetcher(configuration *config.CollectorConfiguration) *DynamicPageFetcher {
	return &DynamicPageFetcher{
		listingsURL: configuration.ListingsURL,
		timeout:     configuration.RenderTimeout,
	}
}

// FetchPage renders the given listing page and returns its full markup.
func (f *DynamicPageFetcher) FetchPage(ctx context.Context, pageNumber int) (string, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "DynamicPageFetcher",
		"page":      pageNumber,
	})

	pageURL, err := f.buildPageURL(pageNumber)
	if err != nil {
		return "", shared.NewPermanentFetchError(pageNumber,
			fmt.Sprintf("malformed listings URL %q: %v", f.listingsURL, err), err)
	}

	// Minimal headless setup: no GPU, no images, JS enabled for the
	// dynamic table.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-images", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	renderCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	renderCtx, cancelTimeout := context.WithTimeout(renderCtx, f.timeout)
	defer cancelTimeout()

	var renderedHTML string
	err = chromedp.Run(renderCtx,
		chromedp.EmulateViewport(1920, 1080),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("table.data-table tbody tr", chromedp.ByQuery),
		chromedp.OuterHTML("html", &renderedHTML, chromedp.ByQuery),
	)
	if err != nil {
		logger.WithError(err).Error("Rendered page fetch failed")
		return "", shared.NewTransientFetchError(pageNumber,
			fmt.Sprintf("rendering %s failed: %v", pageURL, err), err)
	}

	logger.WithField("bytes", len(renderedHTML)).Debug("Fetched rendered listing page")
	return renderedHTML, nil
}

func (f *DynamicPageFetcher) buildPageURL(pageNumber int) (string, error) {
	parsed, err := url.Parse(f.listingsURL)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	query.Set("page", strconv.Itoa(pageNumber))
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
