package registry

import (
	"fmt"

	"multcheck/domain/core"
)

// ComplianceReport relates performed tests to the pre-registration manifest
type ComplianceReport struct {
	PlannedTests    int      `json:"planned_tests"`
	PlannedExecuted int      `json:"planned_executed"` // planned names that were actually run
	MatchedTests    int      `json:"matched_tests"`    // performed tests found in the manifest
	UnplannedTests  int      `json:"unplanned_tests"`  // performed tests absent from the manifest
	ComplianceRate  float64  `json:"compliance_rate"`  // matched / performed
	UnplannedNames  []string `json:"unplanned_names,omitempty"`
	NotExecuted     []string `json:"not_executed,omitempty"` // planned but never run
}

// PreRegister records the planned-test manifest for the session. Registering
// a manifest after tests have already run is allowed but warned about, since
// it no longer constitutes pre-registration.
func (r *Registry) PreRegister(sessionID core.SessionID, plannedTests []string) error {
	h, err := r.handle(sessionID)
	if err != nil {
		return err
	}
	if len(plannedTests) == 0 {
		return fmt.Errorf("%w: empty pre-registration manifest", core.ErrInvalidInput)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session

	if len(s.Tests) > 0 {
		s.warn("pre-registration manifest recorded after tests were already performed")
	}
	s.Planned = append([]string(nil), plannedTests...)
	r.logger.Info("session %s pre-registered %d planned tests", s.ID, len(plannedTests))
	return nil
}

// CheckPreRegistration matches performed tests to the manifest by name
func (r *Registry) CheckPreRegistration(sessionID core.SessionID) (*ComplianceReport, error) {
	h, err := r.handle(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.session

	if len(s.Planned) == 0 {
		return nil, fmt.Errorf("%w: no pre-registration manifest recorded", core.ErrInsufficientData)
	}

	planned := make(map[string]bool, len(s.Planned))
	for _, name := range s.Planned {
		planned[name] = false
	}

	report := &ComplianceReport{PlannedTests: len(s.Planned)}
	for _, t := range s.Tests {
		if _, ok := planned[t.Name]; ok {
			report.MatchedTests++
			planned[t.Name] = true
		} else {
			report.UnplannedTests++
			report.UnplannedNames = append(report.UnplannedNames, t.Name)
		}
	}
	for _, name := range s.Planned {
		if planned[name] {
			report.PlannedExecuted++
		} else {
			report.NotExecuted = append(report.NotExecuted, name)
		}
	}
	if len(s.Tests) > 0 {
		report.ComplianceRate = float64(report.MatchedTests) / float64(len(s.Tests))
	} else {
		report.ComplianceRate = 1
	}
	return report, nil
}
