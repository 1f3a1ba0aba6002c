package export

import (
	"fmt"

	"multcheck/domain/correction"
)

// MethodsStatement renders one canned sentence describing the correction,
// suitable for insertion into a paper's Methods section.
func MethodsStatement(result *correction.Result) string {
	n := result.NTests
	alpha := result.Alpha

	switch result.Method {
	case correction.MethodBonferroni:
		return fmt.Sprintf("P-values were adjusted for %d comparisons using the Bonferroni correction to control the family-wise error rate at %g.", n, alpha)
	case correction.MethodHolm:
		return fmt.Sprintf("P-values were adjusted for %d comparisons using the Holm step-down procedure to control the family-wise error rate at %g.", n, alpha)
	case correction.MethodHochberg:
		return fmt.Sprintf("P-values were adjusted for %d comparisons using the Hochberg step-up procedure to control the family-wise error rate at %g.", n, alpha)
	case correction.MethodSidak:
		return fmt.Sprintf("P-values were adjusted for %d comparisons using the Sidak correction to control the family-wise error rate at %g, assuming independence.", n, alpha)
	case correction.MethodHolmSidak:
		return fmt.Sprintf("P-values were adjusted for %d comparisons using the Holm-Sidak step-down procedure to control the family-wise error rate at %g.", n, alpha)
	case correction.MethodBH:
		return fmt.Sprintf("The false discovery rate across %d tests was controlled at %g using the Benjamini-Hochberg procedure.", n, alpha)
	case correction.MethodBY:
		return fmt.Sprintf("The false discovery rate across %d tests was controlled at %g using the Benjamini-Yekutieli procedure, which is valid under arbitrary dependence.", n, alpha)
	case correction.MethodTwoStage:
		return fmt.Sprintf("The false discovery rate across %d tests was controlled at %g using the two-stage Benjamini-Hochberg procedure with an adaptive estimate of the number of true null hypotheses.", n, alpha)
	case correction.MethodQValue:
		return fmt.Sprintf("Q-values were computed for %d tests using Storey's method (estimated proportion of true nulls %.2f); tests with q <= %g were declared significant.", n, result.Pi0, alpha)
	case correction.MethodNone:
		return fmt.Sprintf("No multiple-comparison correction was applied to the %d tests; each was evaluated at the per-comparison level %g.", n, alpha)
	}
	return fmt.Sprintf("P-values for %d tests were evaluated at alpha = %g.", n, alpha)
}
