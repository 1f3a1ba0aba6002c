package sequential

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"multcheck/domain/core"
)

// SpendingFunction identifies an alpha-spending boundary for interim
// analyses. The set is closed; AlphaSpent switches exhaustively.
type SpendingFunction string

const (
	SpendPocock          SpendingFunction = "pocock"
	SpendOBrienFleming   SpendingFunction = "obrien_fleming"
	SpendLanDeMets       SpendingFunction = "lan_demets"
	SpendHwangShihDeCani SpendingFunction = "hwang_shih_decani"
	SpendRhoFamily       SpendingFunction = "rho"
)

// ParseSpendingFunction validates a spending function name
func ParseSpendingFunction(s string) (SpendingFunction, error) {
	switch SpendingFunction(s) {
	case SpendPocock, SpendOBrienFleming, SpendLanDeMets, SpendHwangShihDeCani, SpendRhoFamily:
		return SpendingFunction(s), nil
	}
	return "", fmt.Errorf("unknown spending function %q", s)
}

// SpendingConfig parameterizes the boundary
type SpendingConfig struct {
	Function SpendingFunction
	Gamma    float64 // Hwang-Shih-DeCani shape
	Rho      float64 // rho-family exponent, defaults to 1
}

// AlphaSpent computes the cumulative alpha spent at information fraction t
// for the target alpha. t must lie in (0, 1].
func AlphaSpent(cfg SpendingConfig, t, alpha float64) (float64, error) {
	if t <= 0 || t > 1 {
		return 0, fmt.Errorf("%w: information fraction %v outside (0, 1]", core.ErrInvalidInput, t)
	}
	if alpha <= 0 || alpha >= 1 {
		return 0, core.ErrInvalidAlpha
	}

	switch cfg.Function {
	case SpendPocock:
		return alpha * math.Log(1+(math.E-1)*t), nil

	case SpendOBrienFleming:
		// Very conservative at low t, converges to alpha at t=1
		z := distuv.UnitNormal.Quantile(1 - alpha/2)
		return 2 * (1 - distuv.UnitNormal.CDF(z/math.Sqrt(t))), nil

	case SpendLanDeMets:
		return alpha * t, nil

	case SpendHwangShihDeCani:
		gamma := cfg.Gamma
		if math.Abs(gamma) < 1e-9 {
			// gamma -> 0 limit is the linear boundary
			return alpha * t, nil
		}
		return alpha * (1 - math.Exp(-gamma*t)) / (1 - math.Exp(-gamma)), nil

	case SpendRhoFamily:
		rho := cfg.Rho
		if rho <= 0 {
			rho = 1
		}
		return alpha * math.Pow(t, rho), nil
	}
	return 0, fmt.Errorf("unknown spending function %q", cfg.Function)
}

// SpendingSchedule computes the cumulative alpha spent at each analysis for a
// strictly increasing information-fraction vector.
func SpendingSchedule(cfg SpendingConfig, fractions []float64, alpha float64) ([]float64, error) {
	if len(fractions) == 0 {
		return nil, fmt.Errorf("%w: empty information-fraction vector", core.ErrInvalidInput)
	}
	spent := make([]float64, len(fractions))
	prev := 0.0
	for i, t := range fractions {
		if t <= prev {
			return nil, core.ErrNonMonotonicFractions
		}
		s, err := AlphaSpent(cfg, t, alpha)
		if err != nil {
			return nil, err
		}
		spent[i] = s
		prev = t
	}
	return spent, nil
}
