package registry

import (
	"github.com/montanaflynn/stats"

	"multcheck/domain/core"
)

// RiskLabel grades the p-hacking risk score
type RiskLabel string

const (
	RiskNone     RiskLabel = "none"
	RiskLow      RiskLabel = "low"
	RiskMedium   RiskLabel = "medium"
	RiskHigh     RiskLabel = "high"
	RiskVeryHigh RiskLabel = "very_high"
)

func riskLabelForScore(score int) RiskLabel {
	switch {
	case score >= 7:
		return RiskVeryHigh
	case score >= 5:
		return RiskHigh
	case score >= 3:
		return RiskMedium
	case score >= 1:
		return RiskLow
	default:
		return RiskNone
	}
}

// Summary is the audit-ready snapshot of a session
type Summary struct {
	SessionID            core.SessionID `json:"session_id"`
	NTests               int            `json:"n_tests"`
	ByFamily             map[Family]int `json:"by_family"`
	RawSignificant       int            `json:"raw_significant"`
	CorrectedSignificant int            `json:"corrected_significant"`
	NCorrected           int            `json:"n_corrected"`
	NCorrections         int            `json:"n_corrections"`
	MeanPValue           float64        `json:"mean_p_value"`
	MedianPValue         float64        `json:"median_p_value"`
	WarningLevel         WarningLevel   `json:"warning_level"`
	RiskScore            int            `json:"risk_score"`
	RiskLabel            RiskLabel      `json:"risk_label"`
	ExportBlocked        bool           `json:"export_blocked"`
	Warnings             []string       `json:"warnings"`
}

// Summarize computes the session summary, including the weighted p-hacking
// risk score. Pure over the session state.
func (s *Session) Summarize() *Summary {
	summary := &Summary{
		SessionID:     s.ID,
		NTests:        len(s.Tests),
		ByFamily:      make(map[Family]int),
		NCorrections:  len(s.Corrections),
		WarningLevel:  s.WarningLevelNow(),
		ExportBlocked: s.ExportBlocked,
		Warnings:      append([]string(nil), s.Warnings...),
	}

	var validP []float64
	marginal := 0
	exploratory := 0
	hashUse := make(map[core.DataHash]int)
	for _, t := range s.Tests {
		summary.ByFamily[t.Family]++
		if t.Family == FamilyExploratory {
			exploratory++
		}
		if !t.DataHash.IsEmpty() {
			hashUse[t.DataHash]++
		}
		if !t.HasValidP() {
			continue
		}
		validP = append(validP, t.PValue)
		if t.PValue <= s.Config.Alpha {
			summary.RawSignificant++
		}
		if t.PValue > marginalBandLow && t.PValue < marginalBandHigh {
			marginal++
		}
		if t.Corrected {
			summary.NCorrected++
			if t.AdjustedP != nil && *t.AdjustedP <= s.Config.Alpha {
				summary.CorrectedSignificant++
			}
		}
	}

	if len(validP) > 0 {
		if mean, err := stats.Mean(validP); err == nil {
			summary.MeanPValue = mean
		}
		if median, err := stats.Median(validP); err == nil {
			summary.MedianPValue = median
		}
	}

	summary.RiskScore = riskScore(s, summary, marginal, exploratory, hashUse)
	summary.RiskLabel = riskLabelForScore(summary.RiskScore)
	return summary
}

// riskScore is the weighted p-hacking heuristic: volume of testing, absence
// of correction, exploratory share, marginal-p clustering, and repeated
// testing against identical data all add weight.
func riskScore(s *Session, summary *Summary, marginal, exploratory int, hashUse map[core.DataHash]int) int {
	n := len(s.Tests)
	score := 0

	switch {
	case n > 20:
		score += 3
	case n > 10:
		score += 2
	case n > 5:
		score += 1
	}

	if n > 1 && summary.NCorrected == 0 {
		score += 2
	}
	if n > 0 && float64(exploratory) > 0.7*float64(n) {
		score += 2
	}
	if n > 0 && float64(marginal) > 0.2*float64(n) {
		score += 2
	}
	for _, uses := range hashUse {
		if uses > 3 {
			score++
			break
		}
	}
	return score
}

// Summarize returns the session summary under the read lock
func (r *Registry) Summarize(sessionID core.SessionID) (*Summary, error) {
	h, err := r.handle(sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session.Summarize(), nil
}
