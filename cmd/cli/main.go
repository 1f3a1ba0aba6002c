package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"multcheck/adapters/export"
	"multcheck/adapters/postgres"
	"multcheck/domain/core"
	"multcheck/domain/correction"
	"multcheck/domain/registry"
	"multcheck/domain/sequential"
	"multcheck/internal"
	"multcheck/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "multcheck",
		Short: "Multiple-comparison correction engine and session auditor",
	}

	rootCmd.AddCommand(
		newCorrectCmd(),
		newSpendingCmd(),
		newExportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCorrectCmd() *cobra.Command {
	var method string
	var alpha float64

	cmd := &cobra.Command{
		Use:   "correct [p-values...]",
		Short: "Adjust a family of p-values for multiple comparisons",
		Long: `Adjust p-values and report rejections at the chosen alpha.

Example: multcheck correct 0.001 0.02 0.04 --method holm --alpha 0.05`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pValues, err := parsePValues(args)
			if err != nil {
				return err
			}
			m, err := correction.ParseMethod(method)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			corrector := newCorrector(cfg)

			result, err := corrector.CorrectAt(context.Background(), pValues, m, alpha)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			fmt.Println()
			fmt.Println(export.MethodsStatement(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", "holm", "correction method (bonferroni, holm, hochberg, sidak, holm_sidak, fdr_bh, fdr_by, fdr_tst, qvalue, none)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "significance level")
	return cmd
}

func newSpendingCmd() *cobra.Command {
	var function string
	var alpha, gamma, rho float64

	cmd := &cobra.Command{
		Use:   "spending [information-fractions...]",
		Short: "Print the alpha-spending schedule for a set of interim analyses",
		Long: `Compute the cumulative and incremental alpha spent at each planned analysis.

Example: multcheck spending 0.33 0.67 1.0 --function obrien_fleming`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fractions := make([]float64, len(args))
			for i, arg := range args {
				f, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid information fraction %q: %w", arg, err)
				}
				fractions[i] = f
			}

			fn, err := sequential.ParseSpendingFunction(function)
			if err != nil {
				return err
			}
			spendingCfg := sequential.SpendingConfig{Function: fn, Gamma: gamma, Rho: rho}

			spent, err := sequential.SpendingSchedule(spendingCfg, fractions, alpha)
			if err != nil {
				return err
			}

			fmt.Printf("%-10s %-12s %-14s %-14s\n", "analysis", "fraction", "cumulative", "incremental")
			prev := 0.0
			for i, s := range spent {
				fmt.Printf("%-10d %-12.3f %-14.6f %-14.6f\n", i+1, fractions[i], s, s-prev)
				prev = s
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&function, "function", "obrien_fleming", "spending function (pocock, obrien_fleming, lan_demets, hwang_shih_decani, rho)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "total alpha to spend")
	cmd.Flags().Float64Var(&gamma, "gamma", -4, "Hwang-Shih-DeCani shape parameter")
	cmd.Flags().Float64Var(&rho, "rho", 1, "rho-family exponent")
	return cmd
}

func newExportCmd() *cobra.Command {
	var format string
	var force bool

	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Export a persisted session to a report file",
		Long: `Load a session from the configured store and write it to the export directory.

Blocked sessions (uncorrected tests in strict mode) refuse to export unless --force is given.

Example: multcheck export 0198c7a2-5b7e-7c6e-9f1a-2d3e4f5a6b7c --format xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := core.ParseSessionID(args[0])
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is not configured")
			}

			db, err := postgres.Open(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			store := postgres.NewSessionStore(db)

			logger := internal.NewDefaultLogger()
			reg := registry.NewRegistry(newCorrector(cfg), logger)

			ctx := context.Background()
			if _, err := reg.LoadSession(ctx, store, sessionID); err != nil {
				return err
			}
			session, err := reg.ExportableSession(sessionID, force)
			if err != nil {
				return err
			}

			exporter := export.NewExporter(cfg.Export.OutputDir, logger)
			path, err := exporter.ExportFile(session, f)
			if err != nil {
				return err
			}
			fmt.Printf("exported session %s to %s\n", sessionID, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format (json, csv, xlsx)")
	cmd.Flags().BoolVar(&force, "force", false, "export even when uncorrected tests remain")
	return cmd
}

func newCorrector(cfg *config.Config) *correction.Corrector {
	pi0 := correction.DefaultPi0Config()
	pi0.Iterations = cfg.Correction.BootstrapIterations
	pi0.Timeout = cfg.Correction.BootstrapTimeout
	pi0.Concurrency = cfg.Correction.BootstrapConcurrency
	return correction.NewCorrector(cfg.Correction.DefaultAlpha, pi0, internal.NewDefaultLogger())
}

// parsePValues accepts numeric strings plus NA/NaN placeholders for tests
// whose p-value is unusable.
func parsePValues(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, arg := range args {
		if s := strings.ToLower(arg); s == "na" || s == "nan" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid p-value %q: %w", arg, err)
		}
		out[i] = v
	}
	return out, nil
}
