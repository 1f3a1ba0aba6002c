package correction

import (
	"context"
	"math"
	"sort"

	"multcheck/domain/core"
)

// GroupResult is the per-group half of a hierarchical correction
type GroupResult struct {
	Group            string    `json:"group"`
	CombinedP        float64   `json:"combined_p"`
	CombinedAdjusted float64   `json:"combined_adjusted"`
	GroupRejected    bool      `json:"group_rejected"`
	Adjusted         []float64 `json:"adjusted_pvalues"`
	Rejected         []bool    `json:"rejected"`
	Note             string    `json:"note,omitempty"`
}

// simesCombined computes the group-level combined p-value as
// min(p)*group_size capped at 1, a conservative shortcut to the full Simes sum.
func simesCombined(p []float64) float64 {
	minP := math.Inf(1)
	for _, pv := range p {
		if pv < minP {
			minP = pv
		}
	}
	return math.Min(minP*float64(len(p)), 1)
}

// HierarchicalFDR performs two-level FDR control: groups are screened first
// via their combined p-values under BH, then only within surviving groups are
// the member p-values BH-corrected. Hypotheses in irrelevant groups pay no
// within-group multiplicity penalty.
func (c *Corrector) HierarchicalFDR(ctx context.Context, groups map[string][]float64, alpha float64) (map[string]*GroupResult, error) {
	if len(groups) == 0 {
		return nil, core.ErrEmptyPValues
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, core.ErrInvalidAlpha
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		if len(groups[name]) == 0 {
			return nil, core.ErrEmptyPValues
		}
		names = append(names, name)
	}
	sort.Strings(names)

	combined := make([]float64, len(names))
	for i, name := range names {
		for idx, pv := range groups[name] {
			if math.IsNaN(pv) || pv < 0 || pv > 1 {
				return nil, core.NewInvalidPValueError(idx, pv)
			}
		}
		combined[i] = simesCombined(groups[name])
	}

	groupLevel := benjaminiHochberg(combined, alpha)

	results := make(map[string]*GroupResult, len(names))
	for i, name := range names {
		gr := &GroupResult{
			Group:            name,
			CombinedP:        combined[i],
			CombinedAdjusted: groupLevel.adjusted[i],
			GroupRejected:    groupLevel.rejected[i],
		}
		if gr.GroupRejected {
			within := benjaminiHochberg(groups[name], alpha)
			gr.Adjusted = within.adjusted
			gr.Rejected = within.rejected
		} else {
			gr.Adjusted = append([]float64(nil), groups[name]...)
			gr.Rejected = make([]bool, len(groups[name]))
			gr.Note = "group not significant at the first level; members were not tested individually"
		}
		results[name] = gr
	}
	return results, nil
}

// TreeNode is one node of a hierarchical test design for TreeFDR
type TreeNode struct {
	Name     string
	PValues  []float64
	Children []*TreeNode
}

// TreeFDR is the simplified tree-based variant of hierarchical FDR: the alpha
// budget is split evenly across tree levels, each tested node gets a BH pass
// at its level budget, and children are only tested when their parent had at
// least one rejection. Untested subtrees carry all-false rejection vectors.
func (c *Corrector) TreeFDR(ctx context.Context, root *TreeNode, alpha float64) (map[string]*GroupResult, error) {
	if root == nil {
		return nil, core.ErrEmptyPValues
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, core.ErrInvalidAlpha
	}

	depth := treeDepth(root)
	levelAlpha := alpha / float64(depth)

	results := make(map[string]*GroupResult)
	c.walkTree(root, levelAlpha, true, results)
	return results, nil
}

func treeDepth(node *TreeNode) int {
	max := 0
	for _, child := range node.Children {
		if d := treeDepth(child); d > max {
			max = d
		}
	}
	return max + 1
}

func (c *Corrector) walkTree(node *TreeNode, levelAlpha float64, parentSurvived bool, results map[string]*GroupResult) {
	gr := &GroupResult{Group: node.Name}

	survived := false
	if len(node.PValues) > 0 {
		if parentSurvived {
			within := benjaminiHochberg(node.PValues, levelAlpha)
			gr.Adjusted = within.adjusted
			gr.Rejected = within.rejected
			survived = countRejected(within.rejected) > 0
			gr.GroupRejected = survived
		} else {
			gr.Adjusted = append([]float64(nil), node.PValues...)
			gr.Rejected = make([]bool, len(node.PValues))
			gr.Note = "ancestor not significant; subtree was not tested"
		}
	} else {
		// Structural node with no hypotheses of its own passes survival through
		survived = parentSurvived
	}
	results[node.Name] = gr

	for _, child := range node.Children {
		c.walkTree(child, levelAlpha, survived, results)
	}
}
