package analysis

import (
	"fmt"
	"sort"
)

// summarize rolls detected fees up into the user-facing summary:
// questionable counts and total, the negotiation suggestions, what the
// catalog knows about the provider, and the largest questionable fees.
func (d *Detector) summarize(fees []FeeCandidate, billType BillType, provider string) Summary {
	var questionable []FeeCandidate
	var totalQuestionable float64
	for _, fee := range fees {
		if fee.IsQuestionable {
			questionable = append(questionable, fee)
			totalQuestionable += fee.Amount
		}
	}

	var suggestions []string
	if len(questionable) > 0 {
		suggestions = []string{
			fmt.Sprintf("Call %s customer service to inquire about the questionable fees identified.", provider),
			"Ask for a detailed explanation of each fee and its purpose.",
			"Specifically request to have unnecessary fees removed from your bill.",
			"If they refuse, consider asking for a supervisor or filing a complaint with the FCC or your state's public utility commission.",
		}
	}

	return Summary{
		TotalFeesDetected:     len(fees),
		QuestionableFeesCount: len(questionable),
		TotalQuestionable:     totalQuestionable,
		Suggestions:           suggestions,
		ProviderInfo: ProviderInfo{
			Name:                     provider,
			KnownForQuestionableFees: d.providerKnownForQuestionableFees(provider),
		},
		BillType:            billType,
		TopQuestionableFees: topQuestionableFees(questionable, d.topLimit),
	}
}

func (d *Detector) providerKnownForQuestionableFees(provider string) bool {
	for _, known := range d.catalog.FeesForProvider(provider) {
		if known.Questionable {
			return true
		}
	}
	return false
}

// topQuestionableFees ranks questionable fees by amount descending and
// truncates to the limit. The sort is stable so equal amounts keep their
// detection order.
func topQuestionableFees(questionable []FeeCandidate, limit int) []QuestionedFee {
	if len(questionable) == 0 {
		return nil
	}

	ranked := make([]FeeCandidate, len(questionable))
	copy(ranked, questionable)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Amount > ranked[j].Amount
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	top := make([]QuestionedFee, 0, len(ranked))
	for _, fee := range ranked {
		top = append(top, QuestionedFee{
			Description: fee.Description,
			Amount:      fee.Amount,
			Reason:      fee.Reason,
		})
	}
	return top
}
