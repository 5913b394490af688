package units

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lidarqa/density-cli/internal/raster"
)

// MaxAttempts bounds how many times a single raster is normalized.
const MaxAttempts = 2

// State is the position of a raster in the unit-correction state machine.
type State int

// Unit-correction states.
const (
	Unchecked State = iota
	Checking
	Passed
	Failed
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Checking:
		return "checking"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Attempt records the correction history of one raster.
type Attempt struct {
	Original string
	Working  string
	Attempts int
	State    State
	Median   float64
}

// Outcome is the result of running the controller over a batch.
type Outcome struct {
	Passed []Attempt
	Failed []Attempt
}

// PassedPaths returns the accepted working path of every passed raster.
func (o *Outcome) PassedPaths() []string {
	out := make([]string, 0, len(o.Passed))
	for _, a := range o.Passed {
		out = append(out, a.Working)
	}
	return out
}

// FailedPaths returns the original path of every raster that exhausted its attempts.
func (o *Outcome) FailedPaths() []string {
	out := make([]string, 0, len(o.Failed))
	for _, a := range o.Failed {
		out = append(out, a.Original)
	}
	return out
}

// Gate returns an *ExhaustedError when any raster failed. Masking must not
// start unless Gate returns nil.
func (o *Outcome) Gate(divisor float64) error {
	if len(o.Failed) == 0 {
		return nil
	}
	return &ExhaustedError{Failed: o.FailedPaths(), Divisor: divisor}
}

// ExhaustedError reports rasters whose values stayed implausible after
// MaxAttempts normalizations. Failed holds the original input paths.
type ExhaustedError struct {
	Failed  []string
	Divisor float64
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("units: %d raster(s) still implausible after %d normalization(s) by %s: %s",
		len(e.Failed), MaxAttempts, raster.FormatDivisor(e.Divisor), strings.Join(e.Failed, ", "))
}

// Controller drives each raster through check, normalize and re-check.
type Controller struct {
	store      raster.Store
	checker    *Checker
	normalizer *Normalizer
	workers    int
	log        *zap.Logger
}

// NewController creates a Controller. workers < 1 runs sequentially.
func NewController(store raster.Store, checker *Checker, normalizer *Normalizer, workers int) *Controller {
	if workers < 1 {
		workers = 1
	}
	return &Controller{
		store:      store,
		checker:    checker,
		normalizer: normalizer,
		workers:    workers,
		log:        zap.L().With(zap.String("component", "unit_controller")),
	}
}

// Correct runs the state machine for a single raster. An error means the
// raster could not be read or written, not that it failed the check.
func (c *Controller) Correct(path string, divisor float64, outputDir string) (Attempt, error) {
	a := Attempt{Original: path, Working: path, State: Unchecked}

	r, err := c.store.Read(path)
	if err != nil {
		return a, eris.Wrapf(err, "units: read %s", path)
	}

	a.State = Checking
	for {
		a.Median, _ = Median(r)
		if c.checker.IsPlausible(r) {
			a.State = Passed
			c.log.Info("raster passed unit check",
				zap.String("path", path),
				zap.String("working", a.Working),
				zap.Int("normalizations", a.Attempts),
				zap.Float64("median", a.Median),
			)
			return a, nil
		}
		if a.Attempts >= MaxAttempts {
			a.State = Failed
			c.log.Warn("raster failed unit check",
				zap.String("path", path),
				zap.Int("normalizations", a.Attempts),
				zap.Float64("median", a.Median),
			)
			return a, nil
		}

		r, err = c.normalizer.Normalize(r, divisor, outputDir)
		if err != nil {
			return a, err
		}
		a.Attempts++
		a.Working = r.Path
	}
}

// Process corrects every raster and returns them split into passed and
// failed, each in input order. Rasters are independent; with more than one
// worker they are processed concurrently and Process returns only once all
// of them have finished.
func (c *Controller) Process(ctx context.Context, paths []string, divisor float64, outputDir string) (*Outcome, error) {
	results := make([]Attempt, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := c.Correct(p, divisor, outputDir)
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Outcome{}
	for _, a := range results {
		if a.State == Passed {
			out.Passed = append(out.Passed, a)
		} else {
			out.Failed = append(out.Failed, a)
		}
	}
	c.log.Info("unit correction complete",
		zap.Int("passed", len(out.Passed)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}
