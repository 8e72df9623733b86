package services

import (
	"time"

	"github.com/fenilmodi00/ipo-collector/models"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// LinkVerifier spot-checks a sample of freshly collected company links after
// a successful run and logs the ones that do not resolve. Purely
// observational: verification failures never affect the run result or the
// persisted state.
type LinkVerifier struct {
	rateLimiter *shared.HTTPRequestRateLimiter
	limit       int
}

// NewLinkVerifier creates a verifier checking at most limit links per run.
func NewLinkVerifier(limit int) *LinkVerifier {
	return &LinkVerifier{
		rateLimiter: shared.NewHTTPRequestRateLimiter(2 * time.Second),
		limit:       limit,
	}
}

// VerifyNewLinks visits up to the configured number of company links and
// returns how many failed to resolve.
func (v *LinkVerifier) VerifyNewLinks(records []models.IPORecord) int {
	if v.limit <= 0 || len(records) == 0 {
		return 0
	}

	logger := logrus.WithField("component", "LinkVerifier")

	sample := records
	if len(sample) > v.limit {
		sample = sample[:v.limit]
	}

	failures := 0

	c := colly.NewCollector()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	})
	c.OnResponse(func(r *colly.Response) {
		logger.WithFields(logrus.Fields{
			"url":         r.Request.URL.String(),
			"status_code": r.StatusCode,
		}).Debug("Company link resolved")
	})
	c.OnError(func(r *colly.Response, err error) {
		failures++
		logger.WithFields(logrus.Fields{
			"url":         r.Request.URL.String(),
			"status_code": r.StatusCode,
		}).WithError(err).Warn("Company link did not resolve")
	})

	for _, record := range sample {
		v.rateLimiter.EnforceRateLimit()
		if err := c.Visit(record.CompanyLink); err != nil {
			// Visit errors for unreachable hosts surface here as well as
			// through OnError; avoid double counting.
			logger.WithFields(logrus.Fields{
				"company": record.Company,
				"url":     record.CompanyLink,
			}).WithError(err).Debug("Company link visit returned error")
		}
	}

	logger.WithFields(logrus.Fields{
		"checked":        len(sample),
		"failures":       failures,
		"total_requests": v.rateLimiter.GetRequestCount(),
	}).Info("Company link spot check completed")

	return failures
}
