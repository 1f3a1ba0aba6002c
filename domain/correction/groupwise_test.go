package correction

import (
	"context"
	"errors"
	"math"
	"testing"

	"multcheck/domain/core"
)

func TestSimesCombined(t *testing.T) {
	if got := simesCombined([]float64{0.01, 0.5, 0.9}); math.Abs(got-0.03) > 1e-12 {
		t.Errorf("combined = %v, want 0.03", got)
	}
	if got := simesCombined([]float64{0.6, 0.7, 0.8}); got != 1 {
		t.Errorf("combined = %v, want cap at 1", got)
	}
}

func TestHierarchicalFDR(t *testing.T) {
	c := newTestCorrector()
	ctx := context.Background()

	groups := map[string][]float64{
		"biomarkers": {0.0001, 0.0005, 0.002},
		"behavior":   {0.001, 0.01},
		"noise":      {0.6, 0.7, 0.8, 0.9},
	}

	results, err := c.HierarchicalFDR(ctx, groups, 0.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d group results, want 3", len(results))
	}

	t.Run("strong group survives and members are tested", func(t *testing.T) {
		gr := results["biomarkers"]
		if !gr.GroupRejected {
			t.Fatal("biomarkers group should pass the first-level screen")
		}
		for i, rej := range gr.Rejected {
			if !rej {
				t.Errorf("biomarkers member %d should be rejected", i)
			}
		}
	})

	t.Run("null group is screened out untested", func(t *testing.T) {
		gr := results["noise"]
		if gr.GroupRejected {
			t.Fatal("noise group should fail the first-level screen")
		}
		for i, rej := range gr.Rejected {
			if rej {
				t.Errorf("noise member %d must not be rejected without within-group testing", i)
			}
		}
		if gr.Note == "" {
			t.Error("untested group should carry an explanatory note")
		}
	})

	t.Run("validation", func(t *testing.T) {
		if _, err := c.HierarchicalFDR(ctx, nil, 0.05); !errors.Is(err, core.ErrEmptyPValues) {
			t.Errorf("nil groups: err = %v, want ErrEmptyPValues", err)
		}
		if _, err := c.HierarchicalFDR(ctx, map[string][]float64{"empty": {}}, 0.05); !errors.Is(err, core.ErrEmptyPValues) {
			t.Errorf("empty group: err = %v, want ErrEmptyPValues", err)
		}
		bad := map[string][]float64{"g": {0.01, 1.2}}
		if _, err := c.HierarchicalFDR(ctx, bad, 0.05); !errors.Is(err, core.ErrPValueOutOfRange) {
			t.Errorf("out-of-range member: err = %v, want ErrPValueOutOfRange", err)
		}
	})
}

func TestTreeFDR(t *testing.T) {
	c := newTestCorrector()
	ctx := context.Background()

	t.Run("children gated on parent rejection", func(t *testing.T) {
		root := &TreeNode{
			Name:    "primary",
			PValues: []float64{0.0001},
			Children: []*TreeNode{
				{Name: "secondary_a", PValues: []float64{0.001, 0.002}},
				{Name: "secondary_b", PValues: []float64{0.9}},
			},
		}

		results, err := c.TreeFDR(ctx, root, 0.05)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !results["primary"].GroupRejected {
			t.Fatal("root hypothesis should be rejected")
		}
		if !results["secondary_a"].Rejected[0] {
			t.Error("strong child under a rejected parent should be tested and rejected")
		}
		if results["secondary_b"].Rejected[0] {
			t.Error("weak child must not be rejected")
		}
	})

	t.Run("subtree skipped when parent fails", func(t *testing.T) {
		root := &TreeNode{
			Name:    "primary",
			PValues: []float64{0.9},
			Children: []*TreeNode{
				{Name: "child", PValues: []float64{0.0001}},
			},
		}

		results, err := c.TreeFDR(ctx, root, 0.05)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		child := results["child"]
		if child.Rejected[0] {
			t.Error("child under a failed parent must stay untested")
		}
		if child.Note == "" {
			t.Error("skipped subtree should carry an explanatory note")
		}
	})

	t.Run("structural node passes survival through", func(t *testing.T) {
		root := &TreeNode{
			Name: "design",
			Children: []*TreeNode{
				{Name: "arm", PValues: []float64{0.0001}},
			},
		}

		results, err := c.TreeFDR(ctx, root, 0.05)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !results["arm"].Rejected[0] {
			t.Error("hypothesis under an empty structural root should be tested")
		}
	})

	t.Run("nil root", func(t *testing.T) {
		if _, err := c.TreeFDR(ctx, nil, 0.05); !errors.Is(err, core.ErrEmptyPValues) {
			t.Errorf("err = %v, want ErrEmptyPValues", err)
		}
	})
}
