package analysis

import "time"

// StructuredDocument is the extracted view of one uploaded bill. It is
// produced once per upload by the ingestion side and is immutable input
// to classification and fee detection.
type StructuredDocument struct {
	FullText        string     `json:"full_text"`
	PageCount       int        `json:"page_count"`
	LineItems       []LineItem `json:"line_items"`
	TotalAmount     *float64   `json:"total_amount,omitempty"`
	ServiceProvider string     `json:"service_provider,omitempty"`
	BillDate        *time.Time `json:"bill_date,omitempty"`
	Customer        Customer   `json:"customer"`
}

// LineItem is a single charge on the bill.
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// Customer holds whatever account details could be read off the bill.
type Customer struct {
	AccountNumber string `json:"account_number,omitempty"`
	Name          string `json:"name,omitempty"`
}

// BillType is the closed set of billing domains the detector understands.
type BillType string

const (
	BillTypeMobile     BillType = "mobile"
	BillTypeInternet   BillType = "internet"
	BillTypeUtility    BillType = "utility"
	BillTypeCreditCard BillType = "credit_card"
	BillTypeCableTV    BillType = "cable_tv"
	BillTypeInsurance  BillType = "insurance"
	BillTypeUnknown    BillType = "unknown"
)

// billTypeOrder fixes the deterministic iteration order used for
// classifier tie-breaks. Declaration order is the precedence.
var billTypeOrder = []BillType{
	BillTypeMobile,
	BillTypeInternet,
	BillTypeUtility,
	BillTypeCreditCard,
	BillTypeCableTV,
	BillTypeInsurance,
}

// ParseBillType maps a request string onto the closed enumeration.
// Anything unrecognized is unknown.
func ParseBillType(s string) BillType {
	for _, bt := range billTypeOrder {
		if s == string(bt) {
			return bt
		}
	}
	return BillTypeUnknown
}

// Confidence is the categorical certainty of a fee classification,
// driven by which detection rule fired.
type Confidence string

const (
	ConfidenceLow      Confidence = "low"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceHigh     Confidence = "high"
	ConfidenceVeryHigh Confidence = "very_high"
)

// FeeType records which pattern family matched a candidate. For
// bill-type-specific matches the value is the bill type itself.
type FeeType string

const (
	FeeTypeGeneral          FeeType = "general"
	FeeTypeProviderSpecific FeeType = "provider_specific"
	FeeTypeUnknown          FeeType = "unknown"
)

// FeeCandidate is one detected charge with its classification. Identity
// for deduplication is the lower-cased description.
type FeeCandidate struct {
	Description    string     `json:"description"`
	Amount         float64    `json:"amount"`
	IsFee          bool       `json:"is_fee"`
	FeeType        FeeType    `json:"fee_type"`
	IsQuestionable bool       `json:"is_questionable"`
	Confidence     Confidence `json:"confidence"`
	Reason         string     `json:"reason"`
}

// AnalysisResult is the full output of one fee detection run.
type AnalysisResult struct {
	DetectedFees     []FeeCandidate `json:"detected_fees"`
	PotentialSavings float64        `json:"potential_savings"`
	Summary          Summary        `json:"summary"`
	Provider         string         `json:"provider,omitempty"`
	BillType         BillType       `json:"bill_type"`
}

// Summary is the user-facing rollup of an analysis.
type Summary struct {
	TotalFeesDetected     int             `json:"total_fees_detected"`
	QuestionableFeesCount int             `json:"questionable_fees_count"`
	TotalQuestionable     float64         `json:"total_questionable_amount"`
	Suggestions           []string        `json:"suggestions"`
	ProviderInfo          ProviderInfo    `json:"provider_info"`
	BillType              BillType        `json:"bill_type"`
	TopQuestionableFees   []QuestionedFee `json:"top_questionable_fees"`
}

// ProviderInfo summarizes what the catalog knows about the provider.
type ProviderInfo struct {
	Name                     string `json:"name"`
	KnownForQuestionableFees bool   `json:"known_for_questionable_fees"`
}

// QuestionedFee is the projection of a questionable candidate shown in
// the summary's top list.
type QuestionedFee struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Reason      string  `json:"reason"`
}
