package registry

import (
	"context"
	"fmt"
	"math"
	"sync"

	"multcheck/domain/core"
	"multcheck/domain/correction"
	"multcheck/internal"
)

// upper rungs for the one-time test-count warnings; the first rung is the
// session's configured WarnThreshold
var upperWarningThresholds = []int{10, 20, 50}

// marginalBand brackets the p-value range scanned for clustering just below
// significance, a classic p-hacking fingerprint.
const (
	marginalBandLow  = 0.04
	marginalBandHigh = 0.06
)

// Registry owns correction-tracking sessions and enforces the
// no-export-without-correction policy. All session mutation runs under a
// per-session lock so concurrent callers sharing a session id are safe.
type Registry struct {
	corrector *correction.Corrector
	logger    *internal.Logger

	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionHandle
}

type sessionHandle struct {
	mu      sync.RWMutex
	session *Session
}

// NewRegistry creates an empty registry backed by the given corrector
func NewRegistry(corrector *correction.Corrector, logger *internal.Logger) *Registry {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Registry{
		corrector: corrector,
		logger:    logger,
		sessions:  make(map[core.SessionID]*sessionHandle),
	}
}

// CreateSession starts a new tracking session and returns it
func (r *Registry) CreateSession(cfg SessionConfig, studyType correction.StudyType) *Session {
	session := NewSession(cfg, studyType)

	r.mu.Lock()
	r.sessions[session.ID] = &sessionHandle{session: session}
	r.mu.Unlock()

	r.logger.Info("session %s created (study_type=%s, alpha=%.3f)", session.ID, studyType, session.Config.Alpha)
	return session
}

// DiscardSession removes a session from the registry
func (r *Registry) DiscardSession(id core.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return core.NewSessionNotFoundError(id)
	}
	delete(r.sessions, id)
	return nil
}

func (r *Registry) handle(id core.SessionID) (*sessionHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	if !ok {
		return nil, core.NewSessionNotFoundError(id)
	}
	return h, nil
}

// RegisterTest appends a hypothesis test to the session. Registration is
// best-effort bookkeeping: it only fails when the session does not exist.
// Out-of-range p-values are recorded as NaN rather than refused.
func (r *Registry) RegisterTest(sessionID core.SessionID, input TestInput) (*HypothesisTest, error) {
	h, err := r.handle(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session

	pv := input.PValue
	if pv < 0 || pv > 1 {
		pv = math.NaN()
		s.warn(fmt.Sprintf("test %q reported a p-value outside [0, 1]; recorded as invalid", input.Name))
	}
	family := input.Family
	if family == "" {
		family = FamilyExploratory
	}

	test := &HypothesisTest{
		ID:                 core.TestID(core.NewID()),
		SessionID:          s.ID,
		Timestamp:          core.Now(),
		Name:               input.Name,
		TestType:           input.TestType,
		Family:             family,
		PValue:             pv,
		Statistic:          input.Statistic,
		EffectSize:         input.EffectSize,
		ConfidenceInterval: input.ConfidenceInterval,
		SampleSize:         input.SampleSize,
		Variables:          append([]string(nil), input.Variables...),
		DataHash:           core.ComputeDataHash(input.Variables, input.SampleSize),
		Group:              input.Group,
		ParentID:           input.ParentID,
	}
	s.Tests = append(s.Tests, test)

	n := len(s.Tests)
	for _, threshold := range s.warningRungs() {
		if n >= threshold {
			if s.warn(fmt.Sprintf("session has reached %d tests; multiple-comparison correction is strongly advised", threshold)) {
				r.logger.Warn("session %s crossed %d tests (level now %s)", s.ID, threshold, s.WarningLevelNow())
			}
		}
	}

	if r.marginalClusterInRecent(s) {
		s.warn("possible p-hacking pattern: 3 or more of the last 5 tests have p-values just below significance (0.04-0.06)")
	}

	// A new test after a correction re-arms the export block in strict mode
	if s.Config.BlockExportWithoutCorrection {
		s.ExportBlocked = true
	}

	r.logger.Debug("session %s registered test %q (p=%.4f, n=%d)", s.ID, test.Name, test.PValue, n)
	return test, nil
}

// marginalClusterInRecent scans the last 5 tests for >= 3 p-values in the
// marginal band
func (r *Registry) marginalClusterInRecent(s *Session) bool {
	start := len(s.Tests) - 5
	if start < 0 {
		start = 0
	}
	marginal := 0
	for _, t := range s.Tests[start:] {
		if t.HasValidP() && t.PValue > marginalBandLow && t.PValue < marginalBandHigh {
			marginal++
		}
	}
	return marginal >= 3
}

// ApplyOptions selects the correction target and method
type ApplyOptions struct {
	Method  correction.Method // empty selects via RecommendMethod
	TestIDs []core.TestID     // empty means all tests
	Group   string            // non-empty restricts to one group label
	Alpha   float64           // zero uses the session alpha
}

// ApplyCorrection corrects the selected subset (default all tests), writes
// the adjusted p-values back onto the selected tests, stores the result on
// the session, and clears the export block when the full test set is covered.
func (r *Registry) ApplyCorrection(ctx context.Context, sessionID core.SessionID, opts ApplyOptions) (*correction.Result, error) {
	h, err := r.handle(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session

	selected := selectTests(s, opts)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no tests match the requested subset", core.ErrInsufficientData)
	}

	alpha := opts.Alpha
	if alpha <= 0 || alpha >= 1 {
		alpha = s.Config.Alpha
	}

	method := opts.Method
	if method == "" {
		method = r.corrector.RecommendMethod(len(selected), s.StudyType, dependenceHeuristic(selected))
	}

	pValues := make([]float64, len(selected))
	for i, t := range selected {
		pValues[i] = t.PValue
	}

	result, err := r.corrector.CorrectAt(ctx, pValues, method, alpha)
	if err != nil {
		return nil, err
	}

	for i, t := range selected {
		adj := result.Adjusted[i]
		if math.IsNaN(adj) {
			continue // invalid p-values stay uncorrected
		}
		v := adj
		t.AdjustedP = &v
		t.CorrectionMethod = method
		t.Corrected = true
	}

	s.Corrections = append(s.Corrections, result)
	if s.uncorrectedCount() == 0 {
		s.ExportBlocked = false
	}

	r.logger.Info("session %s corrected %d tests with %s: %d rejected", s.ID, result.NTests, method, result.NRejected)
	return result, nil
}

func selectTests(s *Session, opts ApplyOptions) []*HypothesisTest {
	if len(opts.TestIDs) > 0 {
		wanted := make(map[core.TestID]bool, len(opts.TestIDs))
		for _, id := range opts.TestIDs {
			wanted[id] = true
		}
		var out []*HypothesisTest
		for _, t := range s.Tests {
			if wanted[t.ID] {
				out = append(out, t)
			}
		}
		return out
	}
	if opts.Group != "" {
		var out []*HypothesisTest
		for _, t := range s.Tests {
			if t.Group == opts.Group {
				out = append(out, t)
			}
		}
		return out
	}
	return append([]*HypothesisTest(nil), s.Tests...)
}

// dependenceHeuristic treats a family that reuses few distinct variables
// relative to its size as dependent.
func dependenceHeuristic(tests []*HypothesisTest) correction.Dependence {
	distinct := make(map[string]bool)
	for _, t := range tests {
		for _, v := range t.Variables {
			distinct[v] = true
		}
	}
	if len(distinct) == 0 {
		return correction.DependenceIndependent
	}
	if float64(len(tests)) >= 1.5*float64(len(distinct)) {
		return correction.DependencePositive
	}
	return correction.DependenceIndependent
}

// ExportableSession enforces the export policy and returns a deep copy of the
// session for serialization. With force, a blocked session is released under
// an audit warning.
func (r *Registry) ExportableSession(sessionID core.SessionID, force bool) (*Session, error) {
	h, err := r.handle(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session

	if s.ExportBlocked && !force {
		return nil, core.ErrExportBlocked
	}
	if s.ExportBlocked && force {
		s.warn("export forced while uncorrected tests remained; results are not multiplicity-protected")
		r.logger.Warn("session %s export forced with %d uncorrected tests", s.ID, s.uncorrectedCount())
	}
	return cloneSession(s), nil
}

// Session returns a deep copy of the session for read-only inspection
func (r *Registry) Session(sessionID core.SessionID) (*Session, error) {
	h, err := r.handle(sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneSession(h.session), nil
}

// SaveSession persists the session through the external store
func (r *Registry) SaveSession(ctx context.Context, store SessionStore, sessionID core.SessionID) error {
	snapshot, err := r.Session(sessionID)
	if err != nil {
		return err
	}
	return store.Save(ctx, snapshot)
}

// LoadSession restores a persisted session into the registry, replacing any
// in-memory copy with the same id.
func (r *Registry) LoadSession(ctx context.Context, store SessionStore, sessionID core.SessionID) (*Session, error) {
	session, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.WarningsIssued == nil {
		session.WarningsIssued = make(map[string]bool)
		for _, w := range session.Warnings {
			session.WarningsIssued[w] = true
		}
	}

	r.mu.Lock()
	r.sessions[session.ID] = &sessionHandle{session: session}
	r.mu.Unlock()
	return cloneSession(session), nil
}

func cloneSession(s *Session) *Session {
	out := *s
	out.Tests = make([]*HypothesisTest, len(s.Tests))
	for i, t := range s.Tests {
		tc := *t
		if t.AdjustedP != nil {
			v := *t.AdjustedP
			tc.AdjustedP = &v
		}
		out.Tests[i] = &tc
	}
	out.Corrections = append([]*correction.Result(nil), s.Corrections...)
	out.Warnings = append([]string(nil), s.Warnings...)
	out.WarningsIssued = make(map[string]bool, len(s.WarningsIssued))
	for k, v := range s.WarningsIssued {
		out.WarningsIssued[k] = v
	}
	out.Planned = append([]string(nil), s.Planned...)
	return &out
}
