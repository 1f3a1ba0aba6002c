package correction

import (
	"encoding/json"
	"fmt"
	"math"
)

// Method identifies a multiple-comparison correction procedure.
// The set is closed: Dispatch in corrector.go switches exhaustively over
// these values, so adding a method is a compiler-visible change.
type Method string

const (
	MethodBonferroni Method = "bonferroni"
	MethodHolm       Method = "holm"
	MethodHochberg   Method = "hochberg"
	MethodSidak      Method = "sidak"
	MethodHolmSidak  Method = "holm_sidak"
	MethodBH         Method = "fdr_bh"  // Benjamini-Hochberg
	MethodBY         Method = "fdr_by"  // Benjamini-Yekutieli
	MethodTwoStage   Method = "fdr_tst" // two-stage Benjamini-Hochberg
	MethodQValue     Method = "qvalue"  // Storey q-values
	MethodNone       Method = "none"
)

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodBonferroni, MethodHolm, MethodHochberg, MethodSidak,
		MethodHolmSidak, MethodBH, MethodBY, MethodTwoStage,
		MethodQValue, MethodNone:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown correction method %q", s)
}

// ErrorRate identifies which error rate a method controls
type ErrorRate string

const (
	ErrorRateFWER ErrorRate = "fwer" // family-wise error rate
	ErrorRateFDR  ErrorRate = "fdr"  // false discovery rate
	ErrorRateNone ErrorRate = "none" // per-comparison only
)

// ControlledRate returns the error rate the method guarantees
func (m Method) ControlledRate() ErrorRate {
	switch m {
	case MethodBonferroni, MethodHolm, MethodHochberg, MethodSidak, MethodHolmSidak:
		return ErrorRateFWER
	case MethodBH, MethodBY, MethodTwoStage, MethodQValue:
		return ErrorRateFDR
	case MethodNone:
		return ErrorRateNone
	}
	return ErrorRateNone
}

// IsFDR reports whether the method controls the false discovery rate
func (m Method) IsFDR() bool {
	return m.ControlledRate() == ErrorRateFDR
}

// StudyType classifies the analysis workflow for method recommendation
type StudyType string

const (
	StudyExploratory  StudyType = "exploratory"
	StudyConfirmatory StudyType = "confirmatory"
	StudySequential   StudyType = "sequential"
)

// Dependence describes the assumed dependence structure among tests
type Dependence string

const (
	DependenceIndependent Dependence = "independent"
	DependencePositive    Dependence = "positive"
	DependenceArbitrary   Dependence = "arbitrary"
)

// Result is the output of one correction invocation. It is created fresh per
// call and never mutated afterwards.
// INVARIANTS:
// - len(Adjusted) == len(Original) == NTests
// - Adjusted restores NaN at the same indices the input had NaN, with
//   Rejected false there
// - for FWER methods, Rejected[i] implies Adjusted[i] <= Alpha
type Result struct {
	Method    Method    `json:"method"`
	Alpha     float64   `json:"alpha"`
	ErrorRate ErrorRate `json:"error_rate"`
	Original  []float64 `json:"original_pvalues"`
	Adjusted  []float64 `json:"adjusted_pvalues"`
	Rejected  []bool    `json:"rejected"`
	NTests    int       `json:"n_tests"`
	NRejected int       `json:"n_rejected"`

	// Optional diagnostics
	Threshold    float64   `json:"threshold,omitempty"`     // adjusted per-test threshold where the method defines one
	QValues      []float64 `json:"q_values,omitempty"`      // for FDR methods the adjusted vector doubles as q-values
	Pi0          float64   `json:"pi0,omitempty"`           // estimated proportion of true nulls (q-value method)
	EstimatedFDR float64   `json:"estimated_fdr,omitempty"` // estimated FDR at the rejection boundary
	Warnings     []string  `json:"warnings,omitempty"`
}

// MarshalJSON encodes the p-value vectors with null in place of NaN, since
// encoding/json refuses NaN outright and the adjusted vector preserves the
// input's NaN positions.
func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(&struct {
		*alias
		Original []*float64 `json:"original_pvalues"`
		Adjusted []*float64 `json:"adjusted_pvalues"`
		QValues  []*float64 `json:"q_values,omitempty"`
	}{
		alias:    (*alias)(r),
		Original: nullableFloats(r.Original),
		Adjusted: nullableFloats(r.Adjusted),
		QValues:  nullableFloats(r.QValues),
	})
}

// UnmarshalJSON restores NaN at null positions in the p-value vectors
func (r *Result) UnmarshalJSON(data []byte) error {
	type alias Result
	aux := struct {
		*alias
		Original []*float64 `json:"original_pvalues"`
		Adjusted []*float64 `json:"adjusted_pvalues"`
		QValues  []*float64 `json:"q_values"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Original = floatsFromNullable(aux.Original)
	r.Adjusted = floatsFromNullable(aux.Adjusted)
	r.QValues = floatsFromNullable(aux.QValues)
	return nil
}

func nullableFloats(vs []float64) []*float64 {
	if vs == nil {
		return nil
	}
	out := make([]*float64, len(vs))
	for i := range vs {
		if !math.IsNaN(vs[i]) {
			v := vs[i]
			out[i] = &v
		}
	}
	return out
}

func floatsFromNullable(vs []*float64) []float64 {
	if vs == nil {
		return nil
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		if v == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *v
		}
	}
	return out
}

// Validate checks the Result invariants
func (r *Result) Validate() error {
	if len(r.Adjusted) != len(r.Original) {
		return fmt.Errorf("adjusted length %d != original length %d", len(r.Adjusted), len(r.Original))
	}
	if r.NTests != len(r.Original) {
		return fmt.Errorf("n_tests %d != original length %d", r.NTests, len(r.Original))
	}
	rejected := 0
	for i, adj := range r.Adjusted {
		inNaN := math.IsNaN(r.Original[i])
		if inNaN != math.IsNaN(adj) {
			return fmt.Errorf("NaN position mismatch at index %d", i)
		}
		if inNaN && r.Rejected[i] {
			return fmt.Errorf("rejected NaN entry at index %d", i)
		}
		if !inNaN && (adj < 0 || adj > 1) {
			return fmt.Errorf("adjusted[%d] = %v outside [0, 1]", i, adj)
		}
		if r.Rejected[i] {
			rejected++
		}
	}
	if rejected != r.NRejected {
		return fmt.Errorf("n_rejected %d does not match rejection vector (%d)", r.NRejected, rejected)
	}
	return nil
}

func (r *Result) addWarning(w string) {
	for _, existing := range r.Warnings {
		if existing == w {
			return
		}
	}
	r.Warnings = append(r.Warnings, w)
}

func countRejected(rejected []bool) int {
	n := 0
	for _, r := range rejected {
		if r {
			n++
		}
	}
	return n
}
