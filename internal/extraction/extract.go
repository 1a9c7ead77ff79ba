// Package extraction pulls structured billing data out of raw OCR text.
// Every field is best-effort: a value that cannot be parsed is simply
// absent, never an error.
package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/feedetective/feedetective/internal/analysis"
)

const (
	minDescriptionLen = 3
	maxDescriptionLen = 100
)

var (
	totalAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Total[\s:]*\$?([0-9,]+\.[0-9]{2})`),
		regexp.MustCompile(`(?i)Amount Due[\s:]*\$?([0-9,]+\.[0-9]{2})`),
		regexp.MustCompile(`(?i)Balance[\s:]*\$?([0-9,]+\.[0-9]{2})`),
	}

	lineItemPattern = regexp.MustCompile(`([\w\s\-]+)[\s:]*\$?([0-9,]+\.[0-9]{2})`)

	providerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(AT&T|Verizon|T-Mobile|Sprint|Comcast|Xfinity|Spectrum|Cox|CenturyLink|Frontier|Optimum|Dish|DirecTV)`),
		regexp.MustCompile(`(?i)(PG&E|Southern California Edison|Duke Energy|Florida Power & Light)`),
		regexp.MustCompile(`(?i)(Water Authority|Gas Company)`),
	}

	billDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Bill Date:?\s*(\d{1,2}/\d{1,2}/\d{2,4})`),
		regexp.MustCompile(`(?i)Date:?\s*(\d{1,2}/\d{1,2}/\d{2,4})`),
		regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{2,4})`),
	}

	accountNumberPattern = regexp.MustCompile(`(?i)Account\s*(?:Number|#)?\s*:?\s*([A-Z0-9\-]+)`)
	customerNamePattern  = regexp.MustCompile(`(?i)Name\s*:?\s*([A-Za-z\s]+)`)
)

// BuildDocument assembles a StructuredDocument from per-page OCR text.
func BuildDocument(pages []string) *analysis.StructuredDocument {
	fullText := strings.Join(pages, "\n\n")
	doc := &analysis.StructuredDocument{
		FullText:        fullText,
		PageCount:       len(pages),
		LineItems:       LineItems(fullText),
		ServiceProvider: ServiceProvider(fullText),
		BillDate:        BillDate(fullText),
		Customer:        CustomerDetails(fullText),
	}
	if total, ok := TotalAmount(fullText); ok {
		doc.TotalAmount = &total
	}
	return doc
}

// TotalAmount finds the bill's stated total. The boolean is false when no
// recognizable total appears in the text.
func TotalAmount(text string) (float64, bool) {
	for _, re := range totalAmountPatterns {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		amount, err := parseAmount(match[1])
		if err != nil {
			continue
		}
		return amount, true
	}
	return 0, false
}

// LineItems extracts description/amount pairs, matching line by line so
// a description never bleeds across charges. Descriptions outside the
// plausible length range are dropped, as are unparsable amounts.
func LineItems(text string) []analysis.LineItem {
	var items []analysis.LineItem

	for _, line := range strings.Split(text, "\n") {
		for _, match := range lineItemPattern.FindAllStringSubmatch(line, -1) {
			description := strings.TrimSpace(match[1])
			if len(description) <= minDescriptionLen || len(description) >= maxDescriptionLen {
				continue
			}
			amount, err := parseAmount(match[2])
			if err != nil {
				continue
			}
			items = append(items, analysis.LineItem{
				Description: description,
				Amount:      amount,
			})
		}
	}

	return items
}

// ServiceProvider returns the first recognizable provider name, or "".
func ServiceProvider(text string) string {
	for _, re := range providerPatterns {
		if match := re.FindStringSubmatch(text); match != nil {
			return match[1]
		}
	}
	return ""
}

// BillDate parses the bill date from common M/D/Y layouts. Nil when no
// date in the text parses.
func BillDate(text string) *time.Time {
	for _, re := range billDatePatterns {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		for _, layout := range []string{"1/2/2006", "1/2/06"} {
			if date, err := time.Parse(layout, match[1]); err == nil {
				return &date
			}
		}
	}
	return nil
}

// CustomerDetails extracts the account number and customer name.
func CustomerDetails(text string) analysis.Customer {
	var customer analysis.Customer
	if match := accountNumberPattern.FindStringSubmatch(text); match != nil {
		customer.AccountNumber = match[1]
	}
	if match := customerNamePattern.FindStringSubmatch(text); match != nil {
		customer.Name = strings.TrimSpace(match[1])
	}
	return customer
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
