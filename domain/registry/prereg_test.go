package registry

import (
	"errors"
	"math"
	"testing"

	"multcheck/domain/core"
	"multcheck/domain/correction"
)

func TestPreRegistrationCompliance(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyConfirmatory)

	if err := r.PreRegister(s.ID, []string{"primary_endpoint", "secondary_endpoint", "safety_signal"}); err != nil {
		t.Fatalf("PreRegister failed: %v", err)
	}

	for _, name := range []string{"primary_endpoint", "secondary_endpoint", "post_hoc_subgroup"} {
		if _, err := r.RegisterTest(s.ID, TestInput{Name: name, PValue: 0.02, SampleSize: 150}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := r.CheckPreRegistration(s.ID)
	if err != nil {
		t.Fatalf("CheckPreRegistration failed: %v", err)
	}

	if report.PlannedTests != 3 {
		t.Errorf("PlannedTests = %d, want 3", report.PlannedTests)
	}
	if report.PlannedExecuted != 2 {
		t.Errorf("PlannedExecuted = %d, want 2", report.PlannedExecuted)
	}
	if report.MatchedTests != 2 || report.UnplannedTests != 1 {
		t.Errorf("Matched=%d Unplanned=%d, want 2 and 1", report.MatchedTests, report.UnplannedTests)
	}
	if math.Abs(report.ComplianceRate-2.0/3.0) > 1e-12 {
		t.Errorf("ComplianceRate = %v, want 2/3", report.ComplianceRate)
	}
	if len(report.UnplannedNames) != 1 || report.UnplannedNames[0] != "post_hoc_subgroup" {
		t.Errorf("UnplannedNames = %v, want [post_hoc_subgroup]", report.UnplannedNames)
	}
	if len(report.NotExecuted) != 1 || report.NotExecuted[0] != "safety_signal" {
		t.Errorf("NotExecuted = %v, want [safety_signal]", report.NotExecuted)
	}
}

func TestPreRegisterAfterTestsWarns(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	if _, err := r.RegisterTest(s.ID, TestInput{Name: "early_bird", PValue: 0.03, SampleSize: 40}); err != nil {
		t.Fatal(err)
	}
	if err := r.PreRegister(s.ID, []string{"early_bird"}); err != nil {
		t.Fatalf("PreRegister failed: %v", err)
	}

	snapshot, _ := r.Session(s.ID)
	if !hasWarningContaining(snapshot.Warnings, "after tests were already performed") {
		t.Errorf("missing late-manifest warning, got %v", snapshot.Warnings)
	}
}

func TestPreRegistrationErrors(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	t.Run("empty manifest", func(t *testing.T) {
		if err := r.PreRegister(s.ID, nil); !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("check without manifest", func(t *testing.T) {
		if _, err := r.CheckPreRegistration(s.ID); !errors.Is(err, core.ErrInsufficientData) {
			t.Errorf("err = %v, want ErrInsufficientData", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if err := r.PreRegister(core.SessionID("missing"), []string{"x"}); !core.IsNotFoundError(err) {
			t.Errorf("err = %v, want a not-found error", err)
		}
	})
}
