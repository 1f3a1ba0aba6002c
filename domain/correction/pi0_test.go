package correction

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestPointEstimate(t *testing.T) {
	t.Run("all small p-values", func(t *testing.T) {
		p := []float64{0.001, 0.002, 0.003, 0.004}
		if got := pi0PointEstimate(p); got != 0 {
			t.Errorf("pi0 = %v, want 0 when nothing exceeds 0.5", got)
		}
	})

	t.Run("all large p-values clamps to one", func(t *testing.T) {
		p := []float64{0.6, 0.7, 0.8, 0.9}
		if got := pi0PointEstimate(p); got != 1 {
			t.Errorf("pi0 = %v, want 1 after clamping", got)
		}
	})

	t.Run("half above half below", func(t *testing.T) {
		p := []float64{0.1, 0.2, 0.6, 0.7}
		if got := pi0PointEstimate(p); math.Abs(got-1) > 1e-12 {
			t.Errorf("pi0 = %v, want 1", got)
		}
	})
}

func TestSmootherOnUniformPValues(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := make([]float64, 200)
	for i := range p {
		p[i] = rng.Float64()
	}

	pi0, warnings := estimatePi0Smoother(p)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	// Uniform p-values mean everything is null; the estimate should be high.
	if pi0 < 0.7 || pi0 > 1 {
		t.Errorf("pi0 = %v, want a value near 1 for uniform p-values", pi0)
	}
}

func TestSmootherWithSignal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	// Half true signal near zero, half uniform nulls
	p := make([]float64, 0, 200)
	for i := 0; i < 100; i++ {
		p = append(p, rng.Float64()*0.01)
	}
	for i := 0; i < 100; i++ {
		p = append(p, rng.Float64())
	}

	pi0, _ := estimatePi0Smoother(p)
	if pi0 < 0 || pi0 > 1 {
		t.Fatalf("pi0 = %v outside [0, 1]", pi0)
	}
	if pi0 > 0.9 {
		t.Errorf("pi0 = %v, expected well below 1 with half the family non-null", pi0)
	}
}

func TestBootstrapDegradesOnTimeout(t *testing.T) {
	cfg := Pi0Config{
		Estimator:   Pi0Bootstrap,
		Iterations:  10000,
		Timeout:     time.Nanosecond,
		Concurrency: 2,
	}
	p := []float64{0.1, 0.2, 0.3, 0.6, 0.7, 0.8}

	pi0, warnings := estimatePi0(context.Background(), p, cfg)
	if pi0 != pi0PointEstimate(p) {
		t.Errorf("degraded pi0 = %v, want point estimate %v", pi0, pi0PointEstimate(p))
	}
	if len(warnings) == 0 {
		t.Error("timeout degradation should be reported in the warnings")
	}
}

func TestBootstrapWithinBudget(t *testing.T) {
	cfg := Pi0Config{
		Estimator:   Pi0Bootstrap,
		Iterations:  200,
		Timeout:     10 * time.Second,
		Concurrency: 4,
	}
	p := []float64{0.01, 0.02, 0.55, 0.6, 0.7, 0.8, 0.9, 0.95}

	pi0, warnings := estimatePi0(context.Background(), p, cfg)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if pi0 < 0 || pi0 > 1 {
		t.Errorf("pi0 = %v outside [0, 1]", pi0)
	}
}

func TestPolynomialFitRecoversExactCubic(t *testing.T) {
	// y = 2 - x + 0.5x^2 + 3x^3
	want := []float64{2, -1, 0.5, 3}
	x := []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = evalPolynomial(want, xi)
	}

	got, err := fitPolynomial(x, y, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for j := range want {
		if math.Abs(got[j]-want[j]) > 1e-8 {
			t.Errorf("coeff[%d] = %v, want %v", j, got[j], want[j])
		}
	}
}
