package correction

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Pi0Estimator selects how the proportion of true nulls is estimated for the
// Storey q-value method.
type Pi0Estimator string

const (
	Pi0Smoother  Pi0Estimator = "smoother"
	Pi0Bootstrap Pi0Estimator = "bootstrap"
)

// Pi0Config bounds the resampling cost of the bootstrap estimator
type Pi0Config struct {
	Estimator   Pi0Estimator
	Iterations  int           // bootstrap resamples, clamped to [100, 10000]
	Timeout     time.Duration // wall-clock budget; degrades to the point estimate when exceeded
	Concurrency int           // parallel resample workers
}

// DefaultPi0Config returns the estimator defaults
func DefaultPi0Config() Pi0Config {
	return Pi0Config{
		Estimator:   Pi0Smoother,
		Iterations:  1000,
		Timeout:     2 * time.Second,
		Concurrency: 4,
	}
}

// smootherEvalLambda is where the fitted pi0(lambda) polynomial is evaluated.
// Pinned at 0.9 rather than extrapolating to 1, where the fit is unstable.
const smootherEvalLambda = 0.9

// estimatePi0 never fails: estimator problems degrade to the simple point
// estimate with a warning attached.
func estimatePi0(ctx context.Context, p []float64, cfg Pi0Config) (float64, []string) {
	switch cfg.Estimator {
	case Pi0Bootstrap:
		return estimatePi0Bootstrap(ctx, p, cfg)
	default:
		return estimatePi0Smoother(p)
	}
}

// pi0PointEstimate is the crude estimator 2*mean(p > 0.5)
func pi0PointEstimate(p []float64) float64 {
	if len(p) == 0 {
		return 1
	}
	above := 0
	for _, pv := range p {
		if pv > 0.5 {
			above++
		}
	}
	return clampPi0(2 * float64(above) / float64(len(p)))
}

func clampPi0(v float64) float64 {
	if math.IsNaN(v) || v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// estimatePi0Smoother fits a cubic to pi0(lambda) over a lambda grid and
// evaluates it near lambda -> 1.
func estimatePi0Smoother(p []float64) (float64, []string) {
	n := float64(len(p))
	var lambdas, estimates []float64
	for lambda := 0.05; lambda < 0.96; lambda += 0.05 {
		above := 0
		for _, pv := range p {
			if pv > lambda {
				above++
			}
		}
		lambdas = append(lambdas, lambda)
		estimates = append(estimates, float64(above)/(n*(1-lambda)))
	}

	coeffs, err := fitPolynomial(lambdas, estimates, 3)
	if err != nil {
		point := pi0PointEstimate(p)
		return point, []string{fmt.Sprintf("pi0 smoother fit failed (%v), degraded to point estimate %.4f", err, point)}
	}

	pi0 := evalPolynomial(coeffs, smootherEvalLambda)
	return clampPi0(pi0), nil
}

// fitPolynomial solves the least-squares Vandermonde system for the given degree
func fitPolynomial(x, y []float64, degree int) ([]float64, error) {
	a := mat.NewDense(len(x), degree+1, nil)
	for i, xi := range x {
		v := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, v)
			v *= xi
		}
	}
	b := mat.NewDense(len(y), 1, nil)
	for i, yi := range y {
		b.Set(i, 0, yi)
	}

	var qr mat.QR
	qr.Factorize(a)
	coeffs := mat.NewDense(degree+1, 1, nil)
	if err := qr.SolveTo(coeffs, false, b); err != nil {
		return nil, err
	}

	out := make([]float64, degree+1)
	for j := 0; j <= degree; j++ {
		out[j] = coeffs.At(j, 0)
	}
	return out, nil
}

func evalPolynomial(coeffs []float64, x float64) float64 {
	v, pow := 0.0, 1.0
	for _, c := range coeffs {
		v += c * pow
		pow *= x
	}
	return v
}

// estimatePi0Bootstrap resamples the point estimator under a bounded
// iteration count and wall-clock budget. On timeout it returns the plain
// point estimate with a warning; it never returns an error.
func estimatePi0Bootstrap(ctx context.Context, p []float64, cfg Pi0Config) (float64, []string) {
	iterations := cfg.Iterations
	if iterations < 100 {
		iterations = 100
	}
	if iterations > 10000 {
		iterations = 10000
	}
	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	point := pi0PointEstimate(p)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	perWorker := (iterations + workers - 1) / workers
	results := make([][]float64, workers)
	for w := 0; w < workers; w++ {
		w := w
		results[w] = make([]float64, 0, perWorker)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)))
			for i := 0; i < perWorker; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				resample := make([]float64, len(p))
				for j := range resample {
					resample[j] = p[rng.Intn(len(p))]
				}
				results[w] = append(results[w], pi0PointEstimate(resample))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return point, []string{fmt.Sprintf("pi0 bootstrap timed out, degraded to point estimate %.4f", point)}
	}

	var all []float64
	for _, r := range results {
		all = append(all, r...)
	}
	mean, err := stats.Mean(all)
	if err != nil {
		return point, []string{fmt.Sprintf("pi0 bootstrap produced no resamples, degraded to point estimate %.4f", point)}
	}
	return clampPi0(mean), nil
}
