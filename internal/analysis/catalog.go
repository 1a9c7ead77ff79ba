package analysis

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// KnownFee is one catalog entry for a provider's recurring fee.
type KnownFee struct {
	Name          string  `yaml:"name"`
	TypicalAmount float64 `yaml:"typical_amount"`
	Questionable  bool    `yaml:"questionable"`
}

// ProviderFees groups the known fees of one provider. Entries keep the
// catalog's declaration order; lookups take the first matching provider.
type ProviderFees struct {
	Provider string     `yaml:"provider"`
	Fees     []KnownFee `yaml:"fees"`
}

// Standards holds the industry thresholds for one bill type. A zero
// maximum means no threshold applies.
type Standards struct {
	AdminFeeMax        float64  `yaml:"admin_fee_max"`
	RegulatoryFeeMax   float64  `yaml:"regulatory_fee_max"`
	EquipmentRentalMax float64  `yaml:"equipment_rental_max"`
	QuestionableFees   []string `yaml:"questionable_fees"`
}

// ProviderTypes maps a list of provider names to a bill type. Declaration
// order is the classification precedence.
type ProviderTypes struct {
	Type      BillType `yaml:"type"`
	Providers []string `yaml:"providers"`
}

// Catalog is the immutable fee knowledge base injected into the
// classifier and detector. All regexes are compiled at load time; a
// malformed pattern makes loading fail rather than surfacing during
// analysis. A loaded catalog is read-only and safe for concurrent use.
type Catalog struct {
	general          []*regexp.Regexp
	feePatterns      map[BillType][]*regexp.Regexp
	providerFees     []ProviderFees
	standards        map[BillType]Standards
	billTypePatterns map[BillType][]*regexp.Regexp
	providerTypes    []ProviderTypes
}

type catalogFile struct {
	FeePatterns       map[string][]string  `yaml:"fee_patterns"`
	ProviderFees      []ProviderFees       `yaml:"provider_fees"`
	IndustryStandards map[string]Standards `yaml:"industry_standards"`
	BillTypePatterns  map[string][]string  `yaml:"bill_type_patterns"`
	ProviderTypes     []ProviderTypes      `yaml:"provider_types"`
}

// DefaultCatalog loads the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog override from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshaling catalog: %w", err)
	}

	c := &Catalog{
		feePatterns:      make(map[BillType][]*regexp.Regexp),
		billTypePatterns: make(map[BillType][]*regexp.Regexp),
		standards:        make(map[BillType]Standards),
		providerFees:     file.ProviderFees,
		providerTypes:    file.ProviderTypes,
	}

	for key, patterns := range file.FeePatterns {
		compiled, err := compilePatterns(patterns)
		if err != nil {
			return nil, fmt.Errorf("fee_patterns.%s: %w", key, err)
		}
		if key == "general" {
			c.general = compiled
			continue
		}
		bt := ParseBillType(key)
		if bt == BillTypeUnknown {
			return nil, fmt.Errorf("fee_patterns: unknown bill type %q", key)
		}
		c.feePatterns[bt] = compiled
	}

	for key, patterns := range file.BillTypePatterns {
		bt := ParseBillType(key)
		if bt == BillTypeUnknown {
			return nil, fmt.Errorf("bill_type_patterns: unknown bill type %q", key)
		}
		compiled, err := compilePatterns(patterns)
		if err != nil {
			return nil, fmt.Errorf("bill_type_patterns.%s: %w", key, err)
		}
		c.billTypePatterns[bt] = compiled
	}

	for key, standards := range file.IndustryStandards {
		bt := ParseBillType(key)
		if bt == BillTypeUnknown {
			return nil, fmt.Errorf("industry_standards: unknown bill type %q", key)
		}
		c.standards[bt] = standards
	}

	for _, entry := range file.ProviderTypes {
		if ParseBillType(string(entry.Type)) == BillTypeUnknown {
			return nil, fmt.Errorf("provider_types: unknown bill type %q", entry.Type)
		}
	}

	return c, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// GeneralPatterns returns the fee patterns applied to every bill type.
func (c *Catalog) GeneralPatterns() []*regexp.Regexp {
	return c.general
}

// TypePatterns returns the additional fee patterns for a bill type, if any.
func (c *Catalog) TypePatterns(bt BillType) []*regexp.Regexp {
	return c.feePatterns[bt]
}

// HasTypePatterns reports whether a bill type carries its own pattern list.
func (c *Catalog) HasTypePatterns(bt BillType) bool {
	_, ok := c.feePatterns[bt]
	return ok
}

// FeesForProvider returns the known fees of the first catalog provider
// whose name is contained in the detected provider string, compared
// case-insensitively. Nil when the provider is not in the catalog.
func (c *Catalog) FeesForProvider(provider string) []KnownFee {
	if provider == "" {
		return nil
	}
	lowered := strings.ToLower(provider)
	for _, entry := range c.providerFees {
		if strings.Contains(lowered, strings.ToLower(entry.Provider)) {
			return entry.Fees
		}
	}
	return nil
}

// StandardsFor returns the industry standards for a bill type.
func (c *Catalog) StandardsFor(bt BillType) (Standards, bool) {
	s, ok := c.standards[bt]
	return s, ok
}
