package sequential

import (
	"errors"
	"math"
	"testing"

	"multcheck/domain/core"
)

func TestEvaluateEarlyStop(t *testing.T) {
	c := NewCorrector(SpendingConfig{Function: SpendPocock})

	// Second analysis crosses its incremental boundary
	results, err := c.Evaluate([]float64{0.5, 0.0001, 0.9}, []float64{0.33, 0.67, 1.0}, 0.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d interim results, want 2 (evaluation stops at the rejection)", len(results))
	}
	if results[0].Rejected {
		t.Error("first analysis should not reject p=0.5")
	}
	if !results[1].Rejected || !results[1].Stopped {
		t.Error("second analysis should reject and stop")
	}
	if results[1].Analysis != 2 {
		t.Errorf("Analysis = %d, want 2", results[1].Analysis)
	}
}

func TestEvaluateNoRejection(t *testing.T) {
	c := NewCorrector(SpendingConfig{Function: SpendOBrienFleming})

	results, err := c.Evaluate([]float64{0.3, 0.2, 0.4}, []float64{0.33, 0.67, 1.0}, 0.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d interim results, want all 3", len(results))
	}
	for i, r := range results {
		if r.Rejected || r.Stopped {
			t.Errorf("analysis %d should not reject", i+1)
		}
	}
}

func TestEvaluateIncrementalAlphaSumsToCumulative(t *testing.T) {
	c := NewCorrector(SpendingConfig{Function: SpendLanDeMets})

	results, err := c.Evaluate([]float64{0.9, 0.9, 0.9}, []float64{0.25, 0.5, 1.0}, 0.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := 0.0
	for _, r := range results {
		sum += r.IncrementalAlpha
		if math.Abs(sum-r.CumulativeAlpha) > 1e-12 {
			t.Errorf("analysis %d: incremental sum %v != cumulative %v", r.Analysis, sum, r.CumulativeAlpha)
		}
	}
	// Linear spending at t=1 exhausts the budget
	if math.Abs(sum-0.05) > 1e-12 {
		t.Errorf("total spend = %v, want 0.05", sum)
	}
}

func TestEvaluateAuditTrail(t *testing.T) {
	c := NewCorrector(SpendingConfig{Function: SpendPocock})

	results, err := c.Evaluate([]float64{0.001}, []float64{0.5}, 0.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := results[0]
	if r.Result == nil {
		t.Fatal("each interim step must carry its audit result")
	}
	if r.Result.NTests != 1 || len(r.Result.Adjusted) != 1 {
		t.Error("audit result should be a single-test record")
	}
	if r.Result.Threshold != r.IncrementalAlpha {
		t.Errorf("audit threshold %v != incremental alpha %v", r.Result.Threshold, r.IncrementalAlpha)
	}
	if len(r.Result.Warnings) == 0 {
		t.Error("audit result should note the fraction and spend")
	}
}

func TestEvaluateValidation(t *testing.T) {
	c := NewCorrector(SpendingConfig{Function: SpendPocock})

	t.Run("empty input", func(t *testing.T) {
		if _, err := c.Evaluate(nil, nil, 0.05); !errors.Is(err, core.ErrEmptyPValues) {
			t.Errorf("err = %v, want ErrEmptyPValues", err)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if _, err := c.Evaluate([]float64{0.1, 0.2}, []float64{0.5}, 0.05); !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("NaN p-value", func(t *testing.T) {
		if _, err := c.Evaluate([]float64{math.NaN()}, []float64{0.5}, 0.05); !errors.Is(err, core.ErrPValueOutOfRange) {
			t.Errorf("err = %v, want ErrPValueOutOfRange", err)
		}
	})

	t.Run("non-monotone fractions", func(t *testing.T) {
		if _, err := c.Evaluate([]float64{0.1, 0.2}, []float64{0.8, 0.5}, 0.05); !errors.Is(err, core.ErrNonMonotonicFractions) {
			t.Errorf("err = %v, want ErrNonMonotonicFractions", err)
		}
	})
}
