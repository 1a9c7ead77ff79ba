package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

// amountWindow is how far past a pattern match the text scan looks for a
// dollar amount belonging to that fee.
const amountWindow = 100

var amountTokenPattern = regexp.MustCompile(`\$?(\d+\.\d{2})`)

// skipWords mark line items that are structural totals rather than fees.
var skipWords = []string{"total", "subtotal", "payment", "credit"}

// questionableKeywords flag fee phrasings that are questionable on their
// own, independent of any catalog entry.
var questionableKeywords = []string{
	"administrative", "admin", "regulatory", "recovery", "compliance",
	"service", "maintenance", "paper", "billing", "statement",
	"convenience", "processing", "technology", "infrastructure",
}

// Detector runs fee detection over a structured document. It is a pure
// computation over the injected catalog: no I/O, no mutable state, safe
// for concurrent use from any number of requests.
type Detector struct {
	catalog  *Catalog
	topLimit int
}

// DetectorOption customizes a Detector.
type DetectorOption func(*Detector)

// WithTopFeeLimit sets how many questionable fees the summary ranks.
func WithTopFeeLimit(limit int) DetectorOption {
	return func(d *Detector) {
		d.topLimit = limit
	}
}

// NewDetector creates a Detector over an immutable catalog.
func NewDetector(catalog *Catalog, opts ...DetectorOption) *Detector {
	d := &Detector{
		catalog:  catalog,
		topLimit: 3,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectFees analyzes a document for hidden or questionable fees. The two
// passes run independently: line items are classified one by one, then the
// raw text is swept for fee phrases the line item extraction may have
// missed. Pass A wins when both passes find the same description.
func (d *Detector) DetectFees(doc *StructuredDocument, billType BillType) *AnalysisResult {
	provider := doc.ServiceProvider

	lineItemFees := d.analyzeLineItems(doc.LineItems, billType, provider)
	textFees := d.detectInText(doc.FullText, billType, provider)
	allFees := combineFees(lineItemFees, textFees)

	var potentialSavings float64
	for _, fee := range allFees {
		if fee.IsQuestionable {
			potentialSavings += fee.Amount
		}
	}

	return &AnalysisResult{
		DetectedFees:     allFees,
		PotentialSavings: potentialSavings,
		Summary:          d.summarize(allFees, billType, provider),
		Provider:         provider,
		BillType:         billType,
	}
}

// analyzeLineItems is the first detection pass, over the structured line
// items. Items that are totals, payments, or credits are skipped; the
// rest are tested against the generic, bill-type, and provider catalogs
// in turn, with later matches raising confidence.
func (d *Detector) analyzeLineItems(items []LineItem, billType BillType, provider string) []FeeCandidate {
	var analyzed []FeeCandidate

	for _, item := range items {
		description := strings.ToLower(item.Description)
		amount := item.Amount

		if amount <= 0 || containsAny(description, skipWords) {
			continue
		}

		isFee := false
		feeType := FeeTypeUnknown
		isQuestionable := false
		confidence := ConfidenceLow

		for _, re := range d.catalog.GeneralPatterns() {
			if re.MatchString(description) {
				isFee = true
				feeType = FeeTypeGeneral
				confidence = ConfidenceMedium
				break
			}
		}

		for _, re := range d.catalog.TypePatterns(billType) {
			if re.MatchString(description) {
				isFee = true
				feeType = FeeType(billType)
				confidence = ConfidenceHigh
				break
			}
		}

		for _, known := range d.catalog.FeesForProvider(provider) {
			if similarDescriptions(description, strings.ToLower(known.Name)) {
				isFee = true
				feeType = FeeTypeProviderSpecific
				isQuestionable = known.Questionable
				confidence = ConfidenceVeryHigh
				break
			}
		}

		if standards, ok := d.catalog.StandardsFor(billType); ok {
			for _, name := range standards.QuestionableFees {
				if similarDescriptions(description, strings.ToLower(name)) {
					isQuestionable = true
					break
				}
			}
			if exceedsThreshold(description, amount, standards) {
				isQuestionable = true
			}
		}

		if isFee {
			analyzed = append(analyzed, FeeCandidate{
				Description:    item.Description,
				Amount:         amount,
				IsFee:          true,
				FeeType:        feeType,
				IsQuestionable: isQuestionable,
				Confidence:     confidence,
				Reason:         d.generateReason(description, amount, isQuestionable, billType, provider),
			})
		}
	}

	return analyzed
}

// detectInText is the second detection pass, over the raw text. Every fee
// pattern match is paired with the first dollar amount within the
// following window; matches without an amount are dropped, as are repeats
// of a phrase already found in this pass.
func (d *Detector) detectInText(text string, billType BillType, provider string) []FeeCandidate {
	var detected []FeeCandidate
	text = strings.ToLower(text)

	patterns := append([]*regexp.Regexp{}, d.catalog.GeneralPatterns()...)
	patterns = append(patterns, d.catalog.TypePatterns(billType)...)

	feeType := FeeTypeGeneral
	if d.catalog.HasTypePatterns(billType) {
		feeType = FeeType(billType)
	}

	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			phrase := text[loc[0]:loc[1]]

			end := loc[1] + amountWindow
			if end > len(text) {
				end = len(text)
			}
			amount, ok := findAmount(text[loc[1]:end])
			if !ok || amount <= 0 {
				continue
			}

			if hasDescription(detected, phrase) {
				continue
			}

			isQuestionable := d.isQuestionableFee(phrase, billType, provider)
			detected = append(detected, FeeCandidate{
				Description:    phrase,
				Amount:         amount,
				IsFee:          true,
				FeeType:        feeType,
				IsQuestionable: isQuestionable,
				Confidence:     ConfidenceMedium,
				Reason:         d.generateReason(phrase, amount, isQuestionable, billType, provider),
			})
		}
	}

	return detected
}

// isQuestionableFee is the standalone predicate used by the text pass:
// a fee is questionable when it matches a provider's known questionable
// fee, an industry-standard questionable fee name, or one of the fixed
// suspicious keywords.
func (d *Detector) isQuestionableFee(description string, billType BillType, provider string) bool {
	description = strings.ToLower(description)

	for _, known := range d.catalog.FeesForProvider(provider) {
		if known.Questionable && similarDescriptions(description, strings.ToLower(known.Name)) {
			return true
		}
	}

	if standards, ok := d.catalog.StandardsFor(billType); ok {
		for _, name := range standards.QuestionableFees {
			if similarDescriptions(description, strings.ToLower(name)) {
				return true
			}
		}
	}

	return containsAny(description, questionableKeywords)
}

// combineFees merges the two passes, keeping line item results whole and
// appending text results whose lower-cased description was not yet seen.
func combineFees(lineItemFees, textFees []FeeCandidate) []FeeCandidate {
	combined := make([]FeeCandidate, 0, len(lineItemFees)+len(textFees))
	seen := make(map[string]struct{})

	for _, fee := range lineItemFees {
		combined = append(combined, fee)
		seen[strings.ToLower(fee.Description)] = struct{}{}
	}
	for _, fee := range textFees {
		key := strings.ToLower(fee.Description)
		if _, ok := seen[key]; ok {
			continue
		}
		combined = append(combined, fee)
		seen[key] = struct{}{}
	}

	return combined
}

// exceedsThreshold applies the industry maximums for administrative,
// regulatory, and equipment fees. Zero maximums are treated as unset.
func exceedsThreshold(description string, amount float64, standards Standards) bool {
	switch {
	case strings.Contains(description, "administrative"):
		return standards.AdminFeeMax > 0 && amount > standards.AdminFeeMax
	case strings.Contains(description, "regulatory"):
		return standards.RegulatoryFeeMax > 0 && amount > standards.RegulatoryFeeMax
	case strings.Contains(description, "equipment"):
		return standards.EquipmentRentalMax > 0 && amount > standards.EquipmentRentalMax
	}
	return false
}

func findAmount(window string) (float64, bool) {
	match := amountTokenPattern.FindStringSubmatch(window)
	if match == nil {
		return 0, false
	}
	amount, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

func hasDescription(fees []FeeCandidate, description string) bool {
	lowered := strings.ToLower(description)
	for _, fee := range fees {
		if strings.ToLower(fee.Description) == lowered {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, word := range words {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}
