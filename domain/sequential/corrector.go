package sequential

import (
	"fmt"
	"math"

	"multcheck/domain/core"
	"multcheck/domain/correction"
)

// InterimResult is the audit record for one interim analysis
type InterimResult struct {
	Analysis            int                `json:"analysis"` // 1-based
	InformationFraction float64            `json:"information_fraction"`
	CumulativeAlpha     float64            `json:"cumulative_alpha"` // alpha spent through this analysis
	IncrementalAlpha    float64            `json:"incremental_alpha"`
	PValue              float64            `json:"p_value"`
	Rejected            bool               `json:"rejected"`
	Stopped             bool               `json:"stopped"` // evaluation halted here for efficacy
	Result              *correction.Result `json:"result"`  // single-test result for the audit trail
}

// Corrector evaluates interim analyses against an alpha-spending boundary
type Corrector struct {
	spending SpendingConfig
}

// NewCorrector creates a sequential corrector for the given boundary
func NewCorrector(spending SpendingConfig) *Corrector {
	return &Corrector{spending: spending}
}

// Evaluate walks each interim analysis in order, spends the incremental alpha
// at each step, and stops evaluating further steps once a rejection occurs
// (early stopping for efficacy). Each evaluated step returns its own
// single-test result annotated with the fraction and alpha spent.
func (c *Corrector) Evaluate(pValues, fractions []float64, alpha float64) ([]InterimResult, error) {
	if len(pValues) == 0 {
		return nil, core.ErrEmptyPValues
	}
	if len(pValues) != len(fractions) {
		return nil, fmt.Errorf("%w: %d p-values but %d information fractions",
			core.ErrInvalidInput, len(pValues), len(fractions))
	}
	for i, pv := range pValues {
		if math.IsNaN(pv) || pv < 0 || pv > 1 {
			return nil, core.NewInvalidPValueError(i, pv)
		}
	}

	spent, err := SpendingSchedule(c.spending, fractions, alpha)
	if err != nil {
		return nil, err
	}

	results := make([]InterimResult, 0, len(pValues))
	prev := 0.0
	for i, pv := range pValues {
		incremental := spent[i] - prev
		prev = spent[i]

		rejected := pv <= incremental
		step := InterimResult{
			Analysis:            i + 1,
			InformationFraction: fractions[i],
			CumulativeAlpha:     spent[i],
			IncrementalAlpha:    incremental,
			PValue:              pv,
			Rejected:            rejected,
			Stopped:             rejected,
			Result: &correction.Result{
				Method:    correction.MethodNone,
				Alpha:     incremental,
				ErrorRate: correction.ErrorRateFWER,
				Original:  []float64{pv},
				Adjusted:  []float64{pv},
				Rejected:  []bool{rejected},
				NTests:    1,
				NRejected: boolToInt(rejected),
				Threshold: incremental,
				Warnings: []string{fmt.Sprintf(
					"interim analysis %d at information fraction %.3f: %.5f of alpha spent",
					i+1, fractions[i], spent[i])},
			},
		}
		results = append(results, step)

		if rejected {
			break
		}
	}
	return results, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
