package cost

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/riskpilot/internal/model"
)

// Price is the per-1K-token rate for one model
type Price struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
}

// PriceTable maps model names to rates. Unknown models get Default.
type PriceTable struct {
	Default Price
	Models  map[string]Price
}

// NewPriceTable parses the configured decimal strings
func NewPriceTable(cfg model.CostConfig) (*PriceTable, error) {
	def, err := parsePrice(cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("default price: %w", err)
	}
	t := &PriceTable{Default: def, Models: make(map[string]Price, len(cfg.Models))}
	for name, p := range cfg.Models {
		price, err := parsePrice(p)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", name, err)
		}
		t.Models[strings.ToLower(name)] = price
	}
	return t, nil
}

func parsePrice(p model.ModelPrice) (Price, error) {
	in, err := decimal.NewFromString(p.InputPer1K)
	if err != nil {
		return Price{}, fmt.Errorf("input_per_1k %q: %w", p.InputPer1K, err)
	}
	out, err := decimal.NewFromString(p.OutputPer1K)
	if err != nil {
		return Price{}, fmt.Errorf("output_per_1k %q: %w", p.OutputPer1K, err)
	}
	if in.IsNegative() || out.IsNegative() {
		return Price{}, fmt.Errorf("negative price %s/%s", in, out)
	}
	return Price{InputPer1K: in, OutputPer1K: out}, nil
}

// Lookup returns the rate for modelName and whether it was listed explicitly.
// Model names match case-insensitively.
func (t *PriceTable) Lookup(modelName string) (Price, bool) {
	if modelName == model.FallbackModelName {
		return Price{InputPer1K: decimal.Zero, OutputPer1K: decimal.Zero}, true
	}
	if p, ok := t.Models[strings.ToLower(modelName)]; ok {
		return p, true
	}
	return t.Default, false
}
