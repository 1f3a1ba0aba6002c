package correction

import (
	"fmt"
	"math"
	"sort"
)

// Each procedure below is a pure function over an already-validated, NaN-free
// p-value slice. All of them are invariant to input order: they rank the
// p-values, work on the sorted view, and scatter results back to the original
// positions. None of them may fail for numerical edge cases (n=1, p=0, p=1).

// algoResult carries a procedure's output aligned to the input order
type algoResult struct {
	adjusted  []float64
	rejected  []bool
	threshold float64
	pi0       float64
	notes     []string
}

// ascendingOrder returns the permutation that sorts p ascending
func ascendingOrder(p []float64) []int {
	order := make([]int, len(p))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })
	return order
}

// sortByOrder gathers p into sorted order
func sortByOrder(p []float64, order []int) []float64 {
	sorted := make([]float64, len(p))
	for rank, idx := range order {
		sorted[rank] = p[idx]
	}
	return sorted
}

// scanDirection names the monotonicity fix-up pass a method family uses
type scanDirection int

const (
	// scanForwardMax is the step-down fix-up: each adjusted value is at
	// least as large as the one before it (Holm family).
	scanForwardMax scanDirection = iota
	// scanBackwardMin is the step-up fix-up: each adjusted value is at
	// most the one after it (Benjamini-Hochberg family).
	scanBackwardMin
)

// enforceMonotone applies a single max- or min-accumulate pass over values
// that are already in sorted-p order, returning a new slice.
func enforceMonotone(sorted []float64, dir scanDirection) []float64 {
	out := make([]float64, len(sorted))
	copy(out, sorted)
	switch dir {
	case scanForwardMax:
		for i := 1; i < len(out); i++ {
			if out[i] < out[i-1] {
				out[i] = out[i-1]
			}
		}
	case scanBackwardMin:
		for i := len(out) - 2; i >= 0; i-- {
			if out[i] > out[i+1] {
				out[i] = out[i+1]
			}
		}
	}
	return out
}

// scatter returns sorted-order values back in original input positions
func scatter(sorted []float64, order []int) []float64 {
	out := make([]float64, len(sorted))
	for rank, idx := range order {
		out[idx] = sorted[rank]
	}
	return out
}

func scatterBool(sorted []bool, order []int) []bool {
	out := make([]bool, len(sorted))
	for rank, idx := range order {
		out[idx] = sorted[rank]
	}
	return out
}

func capAtOne(v float64) float64 {
	return math.Min(v, 1)
}

// bonferroni: adjusted = min(p*n, 1), reject iff p <= alpha/n
func bonferroni(p []float64, alpha float64) algoResult {
	n := float64(len(p))
	threshold := alpha / n
	adjusted := make([]float64, len(p))
	rejected := make([]bool, len(p))
	for i, pv := range p {
		adjusted[i] = capAtOne(pv * n)
		rejected[i] = pv <= threshold
	}
	return algoResult{adjusted: adjusted, rejected: rejected, threshold: threshold}
}

// holm: step-down scan over sorted p-values with per-step Bonferroni
// thresholds. The scan stops at the first failure; later hypotheses are never
// rejected even if individually small.
func holm(p []float64, alpha float64) algoResult {
	n := len(p)
	order := ascendingOrder(p)
	sorted := sortByOrder(p, order)

	raw := make([]float64, n)
	rejSorted := make([]bool, n)
	failed := false
	for i := 0; i < n; i++ {
		step := float64(n - i)
		raw[i] = capAtOne(sorted[i] * step)
		if !failed && sorted[i] <= alpha/step {
			rejSorted[i] = true
		} else {
			failed = true
		}
	}
	adjSorted := enforceMonotone(raw, scanForwardMax)

	return algoResult{
		adjusted: scatter(adjSorted, order),
		rejected: scatterBool(rejSorted, order),
	}
}

// hochberg: step-up scan from the largest p-value. Rejects all hypotheses up
// to the largest index whose sorted p-value clears its per-step threshold.
// Valid under independence or non-negative dependence.
func hochberg(p []float64, alpha float64) algoResult {
	n := len(p)
	order := ascendingOrder(p)
	sorted := sortByOrder(p, order)

	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = capAtOne(sorted[i] * float64(n-i))
	}
	adjSorted := enforceMonotone(raw, scanBackwardMin)

	rejSorted := make([]bool, n)
	cutoff := -1
	for i := n - 1; i >= 0; i-- {
		if sorted[i] <= alpha/float64(n-i) {
			cutoff = i
			break
		}
	}
	for i := 0; i <= cutoff; i++ {
		rejSorted[i] = true
	}

	return algoResult{
		adjusted: scatter(adjSorted, order),
		rejected: scatterBool(rejSorted, order),
		notes:    []string{"hochberg assumes independence or non-negative dependence among tests"},
	}
}

// sidak: adjusted = 1-(1-p)^n with the exact independence threshold
func sidak(p []float64, alpha float64) algoResult {
	n := float64(len(p))
	threshold := 1 - math.Pow(1-alpha, 1/n)
	adjusted := make([]float64, len(p))
	rejected := make([]bool, len(p))
	for i, pv := range p {
		adjusted[i] = capAtOne(1 - math.Pow(1-pv, n))
		rejected[i] = pv <= threshold
	}
	return algoResult{
		adjusted:  adjusted,
		rejected:  rejected,
		threshold: threshold,
		notes:     []string{"sidak assumes independence among tests"},
	}
}

// holmSidak: Holm's step-down scan with the Sidak per-step threshold
func holmSidak(p []float64, alpha float64) algoResult {
	n := len(p)
	order := ascendingOrder(p)
	sorted := sortByOrder(p, order)

	raw := make([]float64, n)
	rejSorted := make([]bool, n)
	failed := false
	for i := 0; i < n; i++ {
		step := float64(n - i)
		raw[i] = capAtOne(1 - math.Pow(1-sorted[i], step))
		stepThreshold := 1 - math.Pow(1-alpha, 1/step)
		if !failed && sorted[i] <= stepThreshold {
			rejSorted[i] = true
		} else {
			failed = true
		}
	}
	adjSorted := enforceMonotone(raw, scanForwardMax)

	return algoResult{
		adjusted: scatter(adjSorted, order),
		rejected: scatterBool(rejSorted, order),
	}
}

// benjaminiHochberg: step-up FDR control. The adjusted vector doubles as
// q-values under the BH model.
func benjaminiHochberg(p []float64, alpha float64) algoResult {
	n := len(p)
	order := ascendingOrder(p)
	sorted := sortByOrder(p, order)

	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = capAtOne(sorted[i] * float64(n) / float64(i+1))
	}
	adjSorted := enforceMonotone(raw, scanBackwardMin)

	rejSorted := make([]bool, n)
	cutoff := -1
	for i := n - 1; i >= 0; i-- {
		if sorted[i] <= float64(i+1)/float64(n)*alpha {
			cutoff = i
			break
		}
	}
	for i := 0; i <= cutoff; i++ {
		rejSorted[i] = true
	}

	return algoResult{
		adjusted: scatter(adjSorted, order),
		rejected: scatterBool(rejSorted, order),
	}
}

// harmonicSum computes c(n) = sum_{k=1}^{n} 1/k
func harmonicSum(n int) float64 {
	c := 0.0
	for k := 1; k <= n; k++ {
		c += 1 / float64(k)
	}
	return c
}

// benjaminiYekutieli: BH under arbitrary dependence. Alpha is divided by the
// harmonic sum c(n), which inflates the adjusted values by the same factor.
func benjaminiYekutieli(p []float64, alpha float64) algoResult {
	n := len(p)
	c := harmonicSum(n)
	order := ascendingOrder(p)
	sorted := sortByOrder(p, order)

	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = capAtOne(sorted[i] * float64(n) * c / float64(i+1))
	}
	adjSorted := enforceMonotone(raw, scanBackwardMin)

	rejSorted := make([]bool, n)
	cutoff := -1
	for i := n - 1; i >= 0; i-- {
		if sorted[i] <= float64(i+1)*alpha/(float64(n)*c) {
			cutoff = i
			break
		}
	}
	for i := 0; i <= cutoff; i++ {
		rejSorted[i] = true
	}

	return algoResult{
		adjusted: scatter(adjSorted, order),
		rejected: scatterBool(rejSorted, order),
		notes:    []string{fmt.Sprintf("benjamini-yekutieli dependence factor c(n) = %.4f applied", c)},
	}
}

// twoStageStageOneLevel is the conservative first-pass level used to estimate
// the number of true nulls before the second BH pass.
const twoStageStageOneLevel = 0.05

// twoStageFDR: estimate m0 from a first BH pass, then rerun BH at the
// inflated level alpha*n/m0. Falls back to plain BH when stage one rejects
// nothing, since the m0 estimate is undefined there.
func twoStageFDR(p []float64, alpha float64) algoResult {
	n := len(p)
	stageOne := benjaminiHochberg(p, twoStageStageOneLevel)
	r1 := countRejected(stageOne.rejected)
	if r1 == 0 {
		res := benjaminiHochberg(p, alpha)
		res.notes = append(res.notes, "two-stage: no stage-one rejections, fell back to plain benjamini-hochberg")
		return res
	}

	m0 := math.Min(float64(n-r1)/(1-twoStageStageOneLevel), float64(n))
	if m0 < 1 {
		m0 = 1
	}
	stageTwoAlpha := alpha * float64(n) / m0
	res := benjaminiHochberg(p, math.Min(stageTwoAlpha, 1))
	res.notes = append(res.notes,
		fmt.Sprintf("two-stage: m0 estimate %.2f of %d tests, stage-two level %.4f", m0, n, stageTwoAlpha))
	return res
}

// storeyQValues: q_i = min(p_sorted*n*pi0/rank, 1) with the BH backward
// fix-up. pi0 is estimated separately (see pi0.go); rejection uses the
// caller's q-value threshold.
func storeyQValues(p []float64, qThreshold, pi0 float64) algoResult {
	n := len(p)
	order := ascendingOrder(p)
	sorted := sortByOrder(p, order)

	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = capAtOne(sorted[i] * float64(n) * pi0 / float64(i+1))
	}
	qSorted := enforceMonotone(raw, scanBackwardMin)

	rejSorted := make([]bool, n)
	for i := 0; i < n; i++ {
		rejSorted[i] = qSorted[i] <= qThreshold
	}

	return algoResult{
		adjusted: scatter(qSorted, order),
		rejected: scatterBool(rejSorted, order),
		pi0:      pi0,
		notes:    []string{fmt.Sprintf("storey q-values computed with pi0 = %.4f", pi0)},
	}
}

// noCorrection: pass-through, per-comparison alpha only
func noCorrection(p []float64, alpha float64) algoResult {
	adjusted := make([]float64, len(p))
	rejected := make([]bool, len(p))
	for i, pv := range p {
		adjusted[i] = pv
		rejected[i] = pv <= alpha
	}
	return algoResult{
		adjusted:  adjusted,
		rejected:  rejected,
		threshold: alpha,
		notes:     []string{"no correction applied: family-wise type-I error is uncontrolled"},
	}
}
