package analysis

import (
	"fmt"
	"strings"
)

const standardFeeReason = "This appears to be a standard fee for this service."

const fallbackReason = "This fee appears to be unnecessary or excessive based on industry standards."

// generateReason explains a candidate's classification. Questionable fees
// accumulate clauses in priority order: a provider known-fee note, then a
// threshold-exceeded note, then the first matching keyword category.
// Expects a lower-cased description.
func (d *Detector) generateReason(description string, amount float64, isQuestionable bool, billType BillType, provider string) string {
	if !isQuestionable {
		return standardFeeReason
	}

	var reasons []string

	for _, known := range d.catalog.FeesForProvider(provider) {
		if known.Questionable && similarDescriptions(description, strings.ToLower(known.Name)) {
			reasons = append(reasons, fmt.Sprintf("This is a known questionable fee commonly added by %s.", provider))
			break
		}
	}

	if standards, ok := d.catalog.StandardsFor(billType); ok {
		switch {
		case strings.Contains(description, "administrative") && standards.AdminFeeMax > 0 && amount > standards.AdminFeeMax:
			reasons = append(reasons, fmt.Sprintf("This administrative fee exceeds the typical maximum of $%.2f.", standards.AdminFeeMax))
		case strings.Contains(description, "regulatory") && standards.RegulatoryFeeMax > 0 && amount > standards.RegulatoryFeeMax:
			reasons = append(reasons, fmt.Sprintf("This regulatory fee exceeds the typical maximum of $%.2f.", standards.RegulatoryFeeMax))
		case strings.Contains(description, "equipment") && standards.EquipmentRentalMax > 0 && amount > standards.EquipmentRentalMax:
			reasons = append(reasons, fmt.Sprintf("This equipment fee exceeds the typical maximum of $%.2f.", standards.EquipmentRentalMax))
		}
	}

	switch {
	case strings.Contains(description, "administrative") || strings.Contains(description, "admin"):
		reasons = append(reasons, "Administrative fees are often used to increase revenue without advertising higher rates.")
	case strings.Contains(description, "regulatory") || strings.Contains(description, "compliance"):
		reasons = append(reasons, "Regulatory fees often exceed actual costs of regulatory compliance.")
	case strings.Contains(description, "convenience") || strings.Contains(description, "processing"):
		reasons = append(reasons, "Convenience or processing fees are often excessive compared to actual costs.")
	case strings.Contains(description, "service"):
		reasons = append(reasons, "Service fees are often vague and may not relate to any specific service.")
	case strings.Contains(description, "paper") || strings.Contains(description, "billing"):
		reasons = append(reasons, "Paper billing fees are often considered excessive for the actual cost of sending a bill.")
	}

	if len(reasons) == 0 {
		return fallbackReason
	}
	return strings.Join(reasons, " ")
}
