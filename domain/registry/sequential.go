package registry

import (
	"fmt"
	"sync"

	"multcheck/domain/core"
	"multcheck/domain/correction"
	"multcheck/domain/sequential"
	"multcheck/internal"
)

// InterimRecord is one interim analysis registered against a session
type InterimRecord struct {
	TestID              core.TestID `json:"test_id"`
	Analysis            int         `json:"analysis"`
	InformationFraction float64     `json:"information_fraction"`
	PValue              float64     `json:"p_value"`
}

// StopDecision is the outcome of a stopping-rule check
type StopDecision struct {
	Stop     bool                       `json:"stop"`
	Analyses []sequential.InterimResult `json:"analyses"`
}

// SequentialRegistry extends Registry with interim-analysis bookkeeping and a
// stopping rule evaluated against an alpha-spending boundary.
type SequentialRegistry struct {
	*Registry
	seq *sequential.Corrector

	mu       sync.Mutex
	interims map[core.SessionID][]InterimRecord
}

// NewSequentialRegistry wraps a registry with sequential-analysis support
func NewSequentialRegistry(corrector *correction.Corrector, spending sequential.SpendingConfig, logger *internal.Logger) *SequentialRegistry {
	return &SequentialRegistry{
		Registry: NewRegistry(corrector, logger),
		seq:      sequential.NewCorrector(spending),
		interims: make(map[core.SessionID][]InterimRecord),
	}
}

// RegisterInterim records an interim analysis: the underlying test is
// registered with the interim family, and the information fraction is kept
// for the stopping rule. Fractions must be strictly increasing.
func (r *SequentialRegistry) RegisterInterim(sessionID core.SessionID, input TestInput, informationFraction float64) (*HypothesisTest, error) {
	if informationFraction <= 0 || informationFraction > 1 {
		return nil, fmt.Errorf("%w: information fraction %v outside (0, 1]", core.ErrInvalidInput, informationFraction)
	}

	// The monotonicity check and the append must share one critical section:
	// test records are append-only, so a violation discovered after
	// registration could not be rolled back.
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.interims[sessionID]
	if len(records) > 0 && informationFraction <= records[len(records)-1].InformationFraction {
		return nil, core.ErrNonMonotonicFractions
	}

	input.Family = FamilyInterim
	test, err := r.RegisterTest(sessionID, input)
	if err != nil {
		return nil, err
	}

	r.interims[sessionID] = append(records, InterimRecord{
		TestID:              test.ID,
		Analysis:            len(records) + 1,
		InformationFraction: informationFraction,
		PValue:              test.PValue,
	})
	return test, nil
}

// Interims returns the interim records registered so far
func (r *SequentialRegistry) Interims(sessionID core.SessionID) []InterimRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InterimRecord(nil), r.interims[sessionID]...)
}

// CheckStoppingRule evaluates every recorded interim analysis against the
// spending boundary and reports whether the trial should stop for efficacy.
func (r *SequentialRegistry) CheckStoppingRule(sessionID core.SessionID, alpha float64) (*StopDecision, error) {
	if _, err := r.handle(sessionID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	records := append([]InterimRecord(nil), r.interims[sessionID]...)
	r.mu.Unlock()

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no interim analyses recorded", core.ErrInsufficientData)
	}

	pValues := make([]float64, len(records))
	fractions := make([]float64, len(records))
	for i, rec := range records {
		pValues[i] = rec.PValue
		fractions[i] = rec.InformationFraction
	}

	analyses, err := r.seq.Evaluate(pValues, fractions, alpha)
	if err != nil {
		return nil, err
	}

	decision := &StopDecision{Analyses: analyses}
	for _, a := range analyses {
		if a.Stopped {
			decision.Stop = true
			break
		}
	}
	return decision, nil
}
