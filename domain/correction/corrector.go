package correction

import (
	"context"
	"math"

	"multcheck/domain/core"
	"multcheck/internal"
)

// Corrector validates inputs, dispatches to the selected procedure, restores
// positions of excluded NaN entries, and attaches diagnostic warnings. It is
// pure given its inputs and safe for concurrent use.
type Corrector struct {
	alpha  float64
	pi0    Pi0Config
	logger *internal.Logger
}

// NewCorrector creates a corrector with the given default alpha. A non-positive
// or out-of-range alpha falls back to 0.05.
func NewCorrector(alpha float64, pi0 Pi0Config, logger *internal.Logger) *Corrector {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Corrector{alpha: alpha, pi0: pi0, logger: logger}
}

// Alpha returns the default significance level
func (c *Corrector) Alpha() float64 {
	return c.alpha
}

// Correct applies the method at the corrector's default alpha
func (c *Corrector) Correct(ctx context.Context, pValues []float64, method Method) (*Result, error) {
	return c.CorrectAt(ctx, pValues, method, c.alpha)
}

// CorrectAt applies the method at an explicit alpha level.
// NaN entries are excluded before dispatch and restored at their original
// indices in the output with Rejected false.
func (c *Corrector) CorrectAt(ctx context.Context, pValues []float64, method Method, alpha float64) (*Result, error) {
	if len(pValues) == 0 {
		return nil, core.ErrEmptyPValues
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, core.ErrInvalidAlpha
	}
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, core.NewUnsupportedMethodError(string(method))
	}

	valid := make([]float64, 0, len(pValues))
	validIdx := make([]int, 0, len(pValues))
	for i, pv := range pValues {
		if math.IsNaN(pv) {
			continue
		}
		if pv < 0 || pv > 1 {
			return nil, core.NewInvalidPValueError(i, pv)
		}
		valid = append(valid, pv)
		validIdx = append(validIdx, i)
	}
	if len(valid) == 0 {
		return nil, core.ErrAllNaN
	}

	res, warnings := c.dispatch(ctx, valid, method, alpha)

	result := &Result{
		Method:    method,
		Alpha:     alpha,
		ErrorRate: method.ControlledRate(),
		Original:  append([]float64(nil), pValues...),
		Adjusted:  make([]float64, len(pValues)),
		Rejected:  make([]bool, len(pValues)),
		NTests:    len(pValues),
		Threshold: res.threshold,
		Pi0:       res.pi0,
	}

	// Restore NaN positions
	for i := range result.Adjusted {
		result.Adjusted[i] = math.NaN()
	}
	for k, idx := range validIdx {
		result.Adjusted[idx] = res.adjusted[k]
		result.Rejected[idx] = res.rejected[k]
	}
	result.NRejected = countRejected(result.Rejected)

	if method.IsFDR() {
		result.QValues = append([]float64(nil), result.Adjusted...)
		for _, adj := range result.Adjusted {
			if !math.IsNaN(adj) && adj > result.EstimatedFDR && adj <= alpha {
				result.EstimatedFDR = adj
			}
		}
	}

	for _, w := range res.notes {
		result.addWarning(w)
	}
	for _, w := range warnings {
		result.addWarning(w)
	}
	if len(valid) < len(pValues) {
		result.addWarning("invalid (NaN) p-values were excluded from correction")
	}
	if len(valid) > 20 {
		result.addWarning("large number of tests, consider an FDR-controlling method")
	}
	if len(valid) < 5 && method.IsFDR() {
		result.addWarning("small number of tests, consider an FWER-controlling method")
	}

	c.logger.Debug("corrected %d p-values with %s at alpha=%.4f: %d rejected",
		result.NTests, method, alpha, result.NRejected)
	c.logger.Trace("adjusted p-values: %v", result.Adjusted)
	return result, nil
}

// dispatch is the single switch over the closed method set
func (c *Corrector) dispatch(ctx context.Context, valid []float64, method Method, alpha float64) (algoResult, []string) {
	switch method {
	case MethodBonferroni:
		return bonferroni(valid, alpha), nil
	case MethodHolm:
		return holm(valid, alpha), nil
	case MethodHochberg:
		return hochberg(valid, alpha), nil
	case MethodSidak:
		return sidak(valid, alpha), nil
	case MethodHolmSidak:
		return holmSidak(valid, alpha), nil
	case MethodBH:
		return benjaminiHochberg(valid, alpha), nil
	case MethodBY:
		return benjaminiYekutieli(valid, alpha), nil
	case MethodTwoStage:
		return twoStageFDR(valid, alpha), nil
	case MethodQValue:
		pi0, warnings := estimatePi0(ctx, valid, c.pi0)
		return storeyQValues(valid, alpha, pi0), warnings
	case MethodNone:
		return noCorrection(valid, alpha), nil
	}
	// Unreachable: ParseMethod already rejected unknown names
	return noCorrection(valid, alpha), nil
}

// RecommendMethod picks a correction method from the study context.
// Confirmatory studies get FWER control, exploratory studies get step-down
// control for small families and FDR control for large ones. A single test
// needs no correction.
func (c *Corrector) RecommendMethod(nTests int, studyType StudyType, dependence Dependence) Method {
	if nTests <= 1 {
		return MethodNone
	}

	if studyType == StudyConfirmatory {
		if nTests <= 5 {
			if dependence == DependenceIndependent {
				return MethodSidak
			}
			return MethodBonferroni
		}
		if dependence == DependenceIndependent {
			return MethodHolmSidak
		}
		return MethodHolm
	}

	if nTests <= 10 {
		return MethodHolm
	}
	if dependence == DependenceArbitrary {
		return MethodBY
	}
	return MethodBH
}
