package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"multcheck/domain/core"
	"multcheck/domain/correction"
	"multcheck/internal"
)

func newTestRegistry() *Registry {
	corrector := correction.NewCorrector(0.05, correction.DefaultPi0Config(), internal.NewLogger(internal.LogLevelError))
	return NewRegistry(corrector, internal.NewLogger(internal.LogLevelError))
}

func registerN(t *testing.T, r *Registry, id core.SessionID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := r.RegisterTest(id, TestInput{
			Name:       fmt.Sprintf("test_%d", i),
			TestType:   "welch_ttest",
			PValue:     0.01 + float64(i)*0.002,
			SampleSize: 100 + i,
			Variables:  []string{fmt.Sprintf("outcome_%d", i), fmt.Sprintf("predictor_%d", i)},
		})
		if err != nil {
			t.Fatalf("RegisterTest %d failed: %v", i, err)
		}
	}
}

func TestExportBlockLifecycle(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	registerN(t, r, s.ID, 6)

	t.Run("blocked while uncorrected", func(t *testing.T) {
		_, err := r.ExportableSession(s.ID, false)
		if !errors.Is(err, core.ErrExportBlocked) {
			t.Fatalf("err = %v, want ErrExportBlocked", err)
		}
		if !core.IsPermissionError(err) {
			t.Error("export block should classify as a permission error")
		}
	})

	t.Run("correction clears the block", func(t *testing.T) {
		res, err := r.ApplyCorrection(ctx, s.ID, ApplyOptions{Method: correction.MethodBH})
		if err != nil {
			t.Fatalf("ApplyCorrection failed: %v", err)
		}
		if res.NTests != 6 {
			t.Errorf("corrected %d tests, want 6", res.NTests)
		}

		snapshot, err := r.ExportableSession(s.ID, false)
		if err != nil {
			t.Fatalf("export after correction failed: %v", err)
		}
		for _, test := range snapshot.Tests {
			if !test.Corrected || test.AdjustedP == nil {
				t.Errorf("test %q not marked corrected after ApplyCorrection", test.Name)
			}
			if test.CorrectionMethod != correction.MethodBH {
				t.Errorf("test %q method = %s, want fdr_bh", test.Name, test.CorrectionMethod)
			}
		}
	})

	t.Run("new registration re-arms the block", func(t *testing.T) {
		_, err := r.RegisterTest(s.ID, TestInput{Name: "late_test", PValue: 0.03, SampleSize: 50})
		if err != nil {
			t.Fatalf("RegisterTest failed: %v", err)
		}
		if _, err := r.ExportableSession(s.ID, false); !errors.Is(err, core.ErrExportBlocked) {
			t.Fatalf("err = %v, want ErrExportBlocked after new registration", err)
		}
	})

	t.Run("force export releases under audit warning", func(t *testing.T) {
		snapshot, err := r.ExportableSession(s.ID, true)
		if err != nil {
			t.Fatalf("forced export failed: %v", err)
		}
		found := false
		for _, w := range snapshot.Warnings {
			if strings.Contains(w, "forced") {
				found = true
			}
		}
		if !found {
			t.Error("forced export must leave an audit warning on the session")
		}
	})
}

func TestPermissiveSessionNeverBlocks(t *testing.T) {
	r := newTestRegistry()
	cfg := DefaultSessionConfig()
	cfg.BlockExportWithoutCorrection = false
	s := r.CreateSession(cfg, correction.StudyExploratory)

	registerN(t, r, s.ID, 4)

	if _, err := r.ExportableSession(s.ID, false); err != nil {
		t.Fatalf("permissive session export failed: %v", err)
	}
}

func TestRegisterTestNeverRefusesBadP(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	test, err := r.RegisterTest(s.ID, TestInput{Name: "typo_p", PValue: 1.7, SampleSize: 30})
	if err != nil {
		t.Fatalf("registration must not refuse out-of-range p: %v", err)
	}
	if !math.IsNaN(test.PValue) {
		t.Errorf("PValue = %v, want NaN for out-of-range input", test.PValue)
	}
	if test.HasValidP() {
		t.Error("HasValidP should be false for the recorded NaN")
	}

	snapshot, _ := r.Session(s.ID)
	if !hasWarningContaining(snapshot.Warnings, "outside [0, 1]") {
		t.Errorf("missing invalid-p warning, got %v", snapshot.Warnings)
	}
}

func TestCountThresholdWarningsIssuedOnce(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	registerN(t, r, s.ID, 12)

	snapshot, _ := r.Session(s.ID)
	for _, threshold := range []int{5, 10} {
		want := fmt.Sprintf("reached %d tests", threshold)
		count := 0
		for _, w := range snapshot.Warnings {
			if strings.Contains(w, want) {
				count++
			}
		}
		if count != 1 {
			t.Errorf("threshold %d warning issued %d times, want exactly once", threshold, count)
		}
	}
	if hasWarningContaining(snapshot.Warnings, "reached 20 tests") {
		t.Error("threshold 20 warning should not fire at 12 tests")
	}
	if snapshot.WarningLevelNow() != WarningHigh {
		t.Errorf("warning level = %s, want high at 12 tests", snapshot.WarningLevelNow())
	}
}

func TestConfiguredWarnThresholdIsFirstRung(t *testing.T) {
	r := newTestRegistry()

	t.Run("lowered threshold warns earlier", func(t *testing.T) {
		cfg := DefaultSessionConfig()
		cfg.WarnThreshold = 3
		s := r.CreateSession(cfg, correction.StudyExploratory)

		registerN(t, r, s.ID, 3)
		snapshot, _ := r.Session(s.ID)
		if !hasWarningContaining(snapshot.Warnings, "reached 3 tests") {
			t.Error("configured threshold 3 should warn at the third test")
		}
	})

	t.Run("raised threshold replaces lower rungs", func(t *testing.T) {
		cfg := DefaultSessionConfig()
		cfg.WarnThreshold = 15
		s := r.CreateSession(cfg, correction.StudyExploratory)

		registerN(t, r, s.ID, 16)
		snapshot, _ := r.Session(s.ID)
		if hasWarningContaining(snapshot.Warnings, "reached 5 tests") || hasWarningContaining(snapshot.Warnings, "reached 10 tests") {
			t.Error("rungs below the configured threshold should not fire")
		}
		if !hasWarningContaining(snapshot.Warnings, "reached 15 tests") {
			t.Error("configured threshold 15 should warn")
		}
	})
}

func TestMarginalClusterWarning(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	// Three of the last five land just below significance
	for i, p := range []float64{0.30, 0.70, 0.045, 0.052, 0.048} {
		_, err := r.RegisterTest(s.ID, TestInput{Name: fmt.Sprintf("probe_%d", i), PValue: p, SampleSize: 40})
		if err != nil {
			t.Fatalf("RegisterTest failed: %v", err)
		}
	}

	snapshot, _ := r.Session(s.ID)
	if !hasWarningContaining(snapshot.Warnings, "p-hacking pattern") {
		t.Errorf("missing marginal-cluster warning, got %v", snapshot.Warnings)
	}
}

func TestApplyCorrectionSubset(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	for i := 0; i < 3; i++ {
		if _, err := r.RegisterTest(s.ID, TestInput{Name: fmt.Sprintf("main_%d", i), PValue: 0.01, Group: "primary", SampleSize: 60}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := r.RegisterTest(s.ID, TestInput{Name: fmt.Sprintf("extra_%d", i), PValue: 0.2, Group: "sensitivity", SampleSize: 60}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := r.ApplyCorrection(ctx, s.ID, ApplyOptions{Method: correction.MethodHolm, Group: "primary"})
	if err != nil {
		t.Fatalf("subset correction failed: %v", err)
	}
	if res.NTests != 3 {
		t.Errorf("corrected %d tests, want the 3 in the group", res.NTests)
	}

	// The other group is still uncorrected, so the block must hold
	if _, err := r.ExportableSession(s.ID, false); !errors.Is(err, core.ErrExportBlocked) {
		t.Errorf("err = %v, want ErrExportBlocked while a group remains uncorrected", err)
	}

	if _, err := r.ApplyCorrection(ctx, s.ID, ApplyOptions{Method: correction.MethodHolm, Group: "sensitivity"}); err != nil {
		t.Fatalf("second subset correction failed: %v", err)
	}
	if _, err := r.ExportableSession(s.ID, false); err != nil {
		t.Errorf("export should succeed once every test is corrected: %v", err)
	}
}

func TestApplyCorrectionAutoMethod(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyConfirmatory)

	// Repeated variables across tests trip the dependence heuristic
	for i := 0; i < 4; i++ {
		if _, err := r.RegisterTest(s.ID, TestInput{
			Name:       fmt.Sprintf("dep_%d", i),
			PValue:     0.01,
			SampleSize: 80,
			Variables:  []string{"outcome", "treatment"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := r.ApplyCorrection(ctx, s.ID, ApplyOptions{})
	if err != nil {
		t.Fatalf("auto correction failed: %v", err)
	}
	// Confirmatory, n<=5, dependent variables: bonferroni
	if res.Method != correction.MethodBonferroni {
		t.Errorf("auto method = %s, want bonferroni", res.Method)
	}
}

func TestApplyCorrectionErrors(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		_, err := r.ApplyCorrection(ctx, core.SessionID("missing"), ApplyOptions{})
		if !core.IsNotFoundError(err) {
			t.Errorf("err = %v, want a not-found error", err)
		}
	})

	t.Run("empty subset", func(t *testing.T) {
		s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)
		registerN(t, r, s.ID, 2)
		_, err := r.ApplyCorrection(ctx, s.ID, ApplyOptions{Group: "nonexistent"})
		if !errors.Is(err, core.ErrInsufficientData) {
			t.Errorf("err = %v, want ErrInsufficientData", err)
		}
	})
}

func TestSessionSnapshotIsolation(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)
	registerN(t, r, s.ID, 2)

	snapshot, err := r.Session(s.ID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	snapshot.Tests[0].Name = "mutated"
	snapshot.Warnings = append(snapshot.Warnings, "injected")

	fresh, _ := r.Session(s.ID)
	if fresh.Tests[0].Name == "mutated" {
		t.Error("snapshot mutation leaked into the registry state")
	}
	if hasWarningContaining(fresh.Warnings, "injected") {
		t.Error("snapshot warning mutation leaked into the registry state")
	}
}

func TestDiscardSession(t *testing.T) {
	r := newTestRegistry()
	s := r.CreateSession(DefaultSessionConfig(), correction.StudyExploratory)

	if err := r.DiscardSession(s.ID); err != nil {
		t.Fatalf("DiscardSession failed: %v", err)
	}
	if _, err := r.Session(s.ID); !core.IsNotFoundError(err) {
		t.Errorf("err = %v, want a not-found error after discard", err)
	}
	if err := r.DiscardSession(s.ID); !core.IsNotFoundError(err) {
		t.Errorf("double discard err = %v, want a not-found error", err)
	}
}

func hasWarningContaining(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
