package bill

import (
	"time"

	"github.com/feedetective/feedetective/internal/analysis"
)

// Upload is one processed bill held for analysis. Nothing about it
// survives its retention window; the registry sweeps expired entries and
// the encryption key never outlives the process.
type Upload struct {
	ID        string                       `json:"id"`
	BillType  analysis.BillType            `json:"bill_type"`
	Provider  string                       `json:"provider,omitempty"`
	Document  *analysis.StructuredDocument `json:"document"`
	CreatedAt time.Time                    `json:"created_at"`
	ExpiresAt time.Time                    `json:"expires_at"`
}
