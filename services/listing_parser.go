package services

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/ipo-collector/models"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/sirupsen/logrus"
)

// ErrNoListingTable indicates the page markup carries no recognizable listing
// table. The controller decides whether to fall back to a rendered fetch or
// treat the page as empty.
var ErrNoListingTable = errors.New("no listing table found in page markup")

// ParsedPage is the result of parsing one listing page.
type ParsedPage struct {
	Records    []models.IPORecord
	TotalPages int // 0 when the pagination control is absent or unreadable
	Warnings   int // rows skipped because a field failed coercion
}

// ListingParser extracts candidate IPO records from raw listing-page markup.
// All markup-shape assumptions about the source site live here.
type ListingParser struct {
	baseURL *url.URL
}

// NewListingParser creates a parser resolving relative company links against
// the listings URL.
func NewListingParser(listingsURL string) (*ListingParser, error) {
	parsed, err := url.Parse(listingsURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, shared.NewServiceError(shared.ErrorCategoryConfiguration, "INVALID_BASE_URL",
			"listings URL must be absolute: "+listingsURL, "ListingParser", "NewListingParser", false, err)
	}
	return &ListingParser{baseURL: parsed}, nil
}

// ParsePage parses one page's markup into candidate records plus the
// total-page count read from the pagination control. Rows that fail field
// coercion are skipped and counted as warnings; they never abort the page.
func (p *ListingParser) ParsePage(rawPage string) (*ParsedPage, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "ListingParser",
		"method":    "ParsePage",
	})

	document, err := goquery.NewDocumentFromReader(strings.NewReader(rawPage))
	if err != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryProcessing, "MARKUP_PARSE",
			"failed to parse page markup", "ListingParser", "ParsePage", false, err)
	}

	table := document.Find("table.data-table").First()
	if table.Length() == 0 {
		return nil, ErrNoListingTable
	}

	result := &ParsedPage{
		TotalPages: p.extractTotalPages(document),
	}

	table.Find("tbody tr").Each(func(rowIndex int, row *goquery.Selection) {
		record, extractErr := p.extractRecord(row)
		if extractErr != nil {
			result.Warnings++
			logger.WithFields(logrus.Fields{
				"row_index": rowIndex,
			}).WithError(extractErr).Warn("Skipping listing row that failed field coercion")
			return
		}
		result.Records = append(result.Records, record)
	})

	logger.WithFields(logrus.Fields{
		"records":     len(result.Records),
		"warnings":    result.Warnings,
		"total_pages": result.TotalPages,
	}).Debug("Parsed listing page")

	return result, nil
}

// extractRecord coerces one table row into a typed record.
func (p *ListingParser) extractRecord(row *goquery.Selection) (models.IPORecord, error) {
	var record models.IPORecord

	cells := row.Find("td")
	if cells.Length() < 6 {
		return record, errors.New("row has fewer cells than the listing schema")
	}

	nameAnchor := cells.Eq(0).Find("a").First()
	companyName := normalizeCellText(nameAnchor.Text())
	if companyName == "" {
		return record, errors.New("row has no company name anchor")
	}

	href, exists := nameAnchor.Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return record, errors.New("company anchor has no href")
	}
	companyLink, err := p.resolveCompanyLink(href)
	if err != nil {
		return record, err
	}

	listingDate, err := parseListingDate(cells.Eq(1).Text())
	if err != nil {
		return record, err
	}

	mcap, err := parseDecimalValue(cells.Eq(2).Text())
	if err != nil {
		return record, err
	}

	ipoPrice, err := parseDecimalValue(cells.Eq(3).Text())
	if err != nil {
		return record, err
	}

	currentPrice, err := parseDecimalValue(cells.Eq(4).Text())
	if err != nil {
		return record, err
	}

	percentChange, err := parsePercentChange(cells.Eq(5).Text())
	if err != nil {
		return record, err
	}

	record = models.IPORecord{
		Company:       companyName,
		CompanyLink:   companyLink,
		ListingDate:   listingDate,
		IPOMCap:       mcap,
		IPOPrice:      ipoPrice,
		CurrentPrice:  currentPrice,
		PercentChange: percentChange,
	}
	return record, nil
}

// resolveCompanyLink turns the row's href into an absolute URL.
func (p *ListingParser) resolveCompanyLink(href string) (string, error) {
	reference, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", errors.New("company link is not a valid URL: " + href)
	}
	return p.baseURL.ResolveReference(reference).String(), nil
}

// extractTotalPages reads the highest page number from the pagination control.
// Returns 0 when the control is absent so the caller can degrade to one page.
func (p *ListingParser) extractTotalPages(document *goquery.Document) int {
	maxPage := 0

	document.Find("div.pagination a").Each(func(_ int, link *goquery.Selection) {
		href, exists := link.Attr("href")
		if !exists || !strings.Contains(href, "page=") {
			return
		}

		parsed, err := url.Parse(href)
		if err != nil {
			return
		}
		pageNumber, err := strconv.Atoi(parsed.Query().Get("page"))
		if err != nil {
			return
		}
		if pageNumber > maxPage {
			maxPage = pageNumber
		}
	})

	return maxPage
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// normalizeCellText cleans cell text and strips the source site's currency
// markers so numeric coercion sees plain digits.
func normalizeCellText(text string) string {
	text = strings.TrimSpace(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ReplaceAll(text, "₹", "")
	text = strings.ReplaceAll(text, "Rs.", "")
	text = strings.ReplaceAll(text, "Rs ", "")

	return strings.TrimSpace(text)
}

// listingDateFormats are the calendar formats observed on the source site.
var listingDateFormats = []string{
	"02-01-2006",       // DD-MM-YYYY
	"2-1-2006",         // D-M-YYYY
	"02/01/2006",       // DD/MM/YYYY
	"2/1/2006",         // D/M/YYYY
	"Jan 02, 2006",     // Mon DD, YYYY
	"January 02, 2006", // Month DD, YYYY
	"02 Jan 2006",      // DD Mon YYYY
	"2 Jan 2006",       // D Mon YYYY
	"02 January 2006",  // DD Month YYYY
	"2006-01-02",       // ISO
}

// parseListingDate attempts the supported calendar formats in order.
func parseListingDate(dateText string) (time.Time, error) {
	normalized := normalizeCellText(dateText)
	if normalized == "" {
		return time.Time{}, errors.New("listing date cell is empty")
	}

	for _, format := range listingDateFormats {
		if parsed, err := time.Parse(format, normalized); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, errors.New("unrecognized listing date format: " + normalized)
}

// parseDecimalValue parses a decimal cell, tolerating currency symbols and
// thousands separators (including Indian digit grouping like 1,23,456.78).
func parseDecimalValue(numericText string) (float64, error) {
	normalized := normalizeCellText(numericText)
	normalized = strings.ReplaceAll(normalized, ",", "")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return 0, errors.New("numeric cell is empty")
	}

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, errors.New("unparseable numeric cell: " + normalized)
	}
	return value, nil
}

// parsePercentChange parses the signed percent-change cell. The source site
// marks direction with arrow glyphs instead of signs.
func parsePercentChange(changeText string) (float64, error) {
	normalized := normalizeCellText(changeText)
	normalized = strings.ReplaceAll(normalized, "⇣", "-")
	normalized = strings.ReplaceAll(normalized, "⇡", "+")
	// The site sometimes pads the glyph from the number; an interior space
	// after sign substitution would defeat ParseFloat.
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.TrimSuffix(normalized, "%")
	normalized = strings.TrimPrefix(normalized, "+")
	normalized = strings.ReplaceAll(normalized, ",", "")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return 0, errors.New("percent change cell is empty")
	}

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, errors.New("unparseable percent change cell: " + normalized)
	}
	return value, nil
}
