// Package pricing computes the USD cost of a model invocation from
// provider-reported token counts.
//
// Cost formula:
//
//	Cost = inputTokens/1M × inputPrice + outputTokens/1M × outputPrice
//
// Prices come from the model catalog. An id missing from the catalog
// prices to zero instead of failing: cost computation must never stop a
// generated response from reaching the user, and audit queries can
// flag zero-cost metered rows separately.
package pricing

import (
	"math"

	"multichat/internal/catalog"
)

// Engine computes invocation costs against a catalog.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine builds a pricing engine over the given catalog.
func NewEngine(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// Cost returns the USD charge for one invocation. Unknown models cost 0.
func (e *Engine) Cost(modelID string, inputTokens, outputTokens int) float64 {
	m, err := e.catalog.Resolve(modelID)
	if err != nil {
		return 0
	}
	inputCost := (float64(inputTokens) / 1_000_000.0) * m.InputPricePerM
	outputCost := (float64(outputTokens) / 1_000_000.0) * m.OutputPricePerM
	return roundUSD(inputCost + outputCost)
}

// roundUSD rounds to 6 decimal places (micro-dollar precision), enough
// for single-call charges that can land well under a cent.
func roundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
