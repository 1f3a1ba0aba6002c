package registry

import (
	"encoding/json"
	"math"

	"multcheck/domain/core"
	"multcheck/domain/correction"
)

// Family classifies a hypothesis test within a study design
type Family string

const (
	FamilyPrimary     Family = "primary"
	FamilySecondary   Family = "secondary"
	FamilyExploratory Family = "exploratory"
	FamilySubgroup    Family = "subgroup"
	FamilySensitivity Family = "sensitivity"
	FamilyInterim     Family = "interim"
)

// WarningLevel grades the multiplicity exposure of a session
type WarningLevel string

const (
	WarningNone     WarningLevel = "none"
	WarningLow      WarningLevel = "low"
	WarningMedium   WarningLevel = "medium"
	WarningHigh     WarningLevel = "high"
	WarningCritical WarningLevel = "critical"
)

// warningLevelForCount maps a test count to its warning level
func warningLevelForCount(n int) WarningLevel {
	switch {
	case n <= 2:
		return WarningNone
	case n <= 5:
		return WarningLow
	case n <= 10:
		return WarningMedium
	case n <= 20:
		return WarningHigh
	default:
		return WarningCritical
	}
}

// HypothesisTest represents one statistical test performed in a session.
// Records are append-only: only ApplyCorrection mutates them, and only the
// correction fields. The Corrected flag and AdjustedP are either both unset
// or both set.
type HypothesisTest struct {
	ID        core.TestID    `json:"id"`
	SessionID core.SessionID `json:"session_id"`
	Timestamp core.Timestamp `json:"timestamp"`

	Name     string `json:"name"`
	TestType string `json:"test_type"` // e.g. "welch_ttest", "chi_square"
	Family   Family `json:"family"`

	PValue             float64     `json:"p_value"`
	Statistic          float64     `json:"statistic"`
	EffectSize         *float64    `json:"effect_size,omitempty"`
	ConfidenceInterval *[2]float64 `json:"confidence_interval,omitempty"`
	SampleSize         int         `json:"sample_size"`

	Variables []string      `json:"variables,omitempty"`
	DataHash  core.DataHash `json:"data_hash,omitempty"`

	Group    string      `json:"group,omitempty"`
	ParentID core.TestID `json:"parent_id,omitempty"`

	Corrected        bool              `json:"corrected"`
	AdjustedP        *float64          `json:"adjusted_p_value,omitempty"`
	CorrectionMethod correction.Method `json:"correction_method,omitempty"`
}

// HasValidP reports whether the recorded p-value is usable
func (t *HypothesisTest) HasValidP() bool {
	return !math.IsNaN(t.PValue) && t.PValue >= 0 && t.PValue <= 1
}

// MarshalJSON encodes NaN evidence fields as null. Out-of-range p-values are
// recorded as NaN on purpose, and encoding/json refuses NaN, so the record
// would otherwise be unexportable and unpersistable.
func (t *HypothesisTest) MarshalJSON() ([]byte, error) {
	type alias HypothesisTest
	aux := struct {
		*alias
		PValue    *float64 `json:"p_value"`
		Statistic *float64 `json:"statistic"`
	}{alias: (*alias)(t)}
	if !math.IsNaN(t.PValue) {
		v := t.PValue
		aux.PValue = &v
	}
	if !math.IsNaN(t.Statistic) {
		v := t.Statistic
		aux.Statistic = &v
	}
	return json.Marshal(aux)
}

// UnmarshalJSON restores NaN where the payload carries null
func (t *HypothesisTest) UnmarshalJSON(data []byte) error {
	type alias HypothesisTest
	aux := struct {
		*alias
		PValue    *float64 `json:"p_value"`
		Statistic *float64 `json:"statistic"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.PValue = math.NaN()
	if aux.PValue != nil {
		t.PValue = *aux.PValue
	}
	t.Statistic = math.NaN()
	if aux.Statistic != nil {
		t.Statistic = *aux.Statistic
	}
	return nil
}

// TestInput is the caller-facing payload for RegisterTest
type TestInput struct {
	Name               string
	TestType           string
	Family             Family
	PValue             float64
	Statistic          float64
	EffectSize         *float64
	ConfidenceInterval *[2]float64
	SampleSize         int
	Variables          []string
	Group              string
	ParentID           core.TestID
}

// SessionConfig captures a session's enforcement policy
type SessionConfig struct {
	Alpha                        float64 `json:"alpha"`
	RequireCorrection            bool    `json:"require_correction"`
	WarnThreshold                int     `json:"warn_threshold"`
	BlockExportWithoutCorrection bool    `json:"block_export_without_correction"`
}

// DefaultSessionConfig returns the strict-mode defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Alpha:                        0.05,
		RequireCorrection:            true,
		WarnThreshold:                5,
		BlockExportWithoutCorrection: true,
	}
}

// Session is the mutable owner of a correction-tracking workflow. It is
// exclusively owned by the workflow that created it; the registry guards all
// mutation behind a per-session lock.
type Session struct {
	ID        core.SessionID       `json:"id"`
	CreatedAt core.Timestamp       `json:"created_at"`
	Config    SessionConfig        `json:"config"`
	StudyType correction.StudyType `json:"study_type"`

	Tests       []*HypothesisTest    `json:"tests"`
	Corrections []*correction.Result `json:"corrections"`

	// Warnings preserves issue order; WarningsIssued deduplicates.
	Warnings       []string        `json:"warnings"`
	WarningsIssued map[string]bool `json:"warnings_issued"`

	ExportBlocked bool     `json:"export_blocked"`
	Planned       []string `json:"planned_tests,omitempty"` // pre-registration manifest
}

// NewSession creates a session with the given policy
func NewSession(cfg SessionConfig, studyType correction.StudyType) *Session {
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		cfg.Alpha = 0.05
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = 5
	}
	if studyType == "" {
		studyType = correction.StudyExploratory
	}
	return &Session{
		ID:             core.SessionID(core.NewID()),
		CreatedAt:      core.Now(),
		Config:         cfg,
		StudyType:      studyType,
		Tests:          make([]*HypothesisTest, 0),
		Corrections:    make([]*correction.Result, 0),
		Warnings:       make([]string, 0),
		WarningsIssued: make(map[string]bool),
	}
}

// warn records a warning string once per session
func (s *Session) warn(msg string) bool {
	if s.WarningsIssued[msg] {
		return false
	}
	s.WarningsIssued[msg] = true
	s.Warnings = append(s.Warnings, msg)
	return true
}

// warningRungs returns the test counts at which a one-time warning is
// issued: the configured WarnThreshold first, then the fixed upper rungs
// above it.
func (s *Session) warningRungs() []int {
	rungs := []int{s.Config.WarnThreshold}
	for _, t := range upperWarningThresholds {
		if t > s.Config.WarnThreshold {
			rungs = append(rungs, t)
		}
	}
	return rungs
}

// uncorrectedCount counts tests with a usable p-value and no correction yet
func (s *Session) uncorrectedCount() int {
	n := 0
	for _, t := range s.Tests {
		if t.HasValidP() && !t.Corrected {
			n++
		}
	}
	return n
}

// WarningLevelNow returns the current multiplicity warning level
func (s *Session) WarningLevelNow() WarningLevel {
	return warningLevelForCount(len(s.Tests))
}
