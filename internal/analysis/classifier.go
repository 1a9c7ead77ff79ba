package analysis

import "strings"

// Classifier assigns a bill type to a document using the catalog's
// provider mappings and keyword patterns.
type Classifier struct {
	catalog *Catalog
}

// NewClassifier creates a Classifier over an immutable catalog.
func NewClassifier(catalog *Catalog) *Classifier {
	return &Classifier{catalog: catalog}
}

// Classify determines the bill type of a document. The provider mapping
// is consulted first; when it yields nothing, every bill type is scored
// by the number of keyword pattern hits in the full text and the highest
// score wins. Ties and total misses resolve in the fixed bill type
// declaration order and to unknown, respectively.
func (c *Classifier) Classify(doc *StructuredDocument) BillType {
	if doc.ServiceProvider != "" {
		if bt := c.classifyFromProvider(doc.ServiceProvider); bt != BillTypeUnknown {
			return bt
		}
	}

	text := strings.ToLower(doc.FullText)
	scores := make(map[BillType]int)
	for _, entry := range billTypeOrder {
		for _, re := range c.catalog.billTypePatterns[entry] {
			scores[entry] += len(re.FindAllString(text, -1))
		}
	}

	best := BillTypeUnknown
	bestScore := 0
	for _, bt := range billTypeOrder {
		if scores[bt] > bestScore {
			best = bt
			bestScore = scores[bt]
		}
	}
	return best
}

// classifyFromProvider walks the catalog's provider lists in declaration
// order and returns the type of the first provider name contained in the
// detected provider string.
func (c *Classifier) classifyFromProvider(provider string) BillType {
	lowered := strings.ToLower(provider)
	for _, entry := range c.catalog.providerTypes {
		for _, name := range entry.Providers {
			if strings.Contains(lowered, strings.ToLower(name)) {
				return entry.Type
			}
		}
	}
	return BillTypeUnknown
}
