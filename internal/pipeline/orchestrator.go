// Package pipeline sequences project-area loading, water resolution, unit
// correction and masking over a batch of density rasters.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lidarqa/density-cli/internal/geo"
	"github.com/lidarqa/density-cli/internal/mask"
	"github.com/lidarqa/density-cli/internal/raster"
	"github.com/lidarqa/density-cli/internal/units"
)

// PolygonLoader reads project-area vector files.
type PolygonLoader interface {
	Load(paths []string) ([]geo.Polygon, error)
}

// WaterResolver returns the water polygons overlapping the project area.
type WaterResolver interface {
	Resolve(ctx context.Context, project []geo.Polygon) ([]geo.Polygon, error)
}

// WaterConnector acquires the water resolver for one run. Run calls release
// on every exit path once the connector succeeded.
type WaterConnector func(ctx context.Context) (resolver WaterResolver, release func(), err error)

// StaticWater wraps an already connected resolver.
func StaticWater(r WaterResolver) WaterConnector {
	return func(context.Context) (WaterResolver, func(), error) {
		return r, func() {}, nil
	}
}

// UnitCorrector runs the unit-correction state machine over a batch.
type UnitCorrector interface {
	Process(ctx context.Context, paths []string, divisor float64, outputDir string) (*units.Outcome, error)
}

// RasterMasker masks a single raster.
type RasterMasker interface {
	Mask(r *raster.DensityRaster, include, exclude []geo.Polygon, outputDir string) (*mask.Result, error)
}

// Deps are the collaborators of an Orchestrator. Observer may be nil.
type Deps struct {
	Loader   PolygonLoader
	Water    WaterConnector
	Units    UnitCorrector
	Masker   RasterMasker
	Store    raster.Store
	Observer Observer
}

// Options tune a run.
type Options struct {
	Divisor       float64
	Workers       int
	SkipUnitCheck bool
}

// Orchestrator runs the density QA pipeline.
type Orchestrator struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Orchestrator{
		deps: deps,
		opts: opts,
		log:  zap.L().With(zap.String("component", "orchestrator")),
	}
}

// MaskFailure records a raster that could not be masked.
type MaskFailure struct {
	Path  string
	Error string
}

// PhaseResult summarises one pipeline phase.
type PhaseResult struct {
	Name     string
	Status   string
	Duration int64 // milliseconds
	Error    string
	Metadata map[string]any
}

// RunResult is everything a run produced. Results holds the masked rasters
// in input order; rasters that failed to mask are listed in MaskFailures.
type RunResult struct {
	Results         []*mask.Result
	Passed          []units.Attempt
	Failed          []string
	MaskFailures    []MaskFailure
	ProjectPolygons int
	WaterPolygons   int
	ErrorLog        string
	Phases          []PhaseResult
}

// Run executes the pipeline. When unit correction leaves any raster
// implausible, Run returns a *units.ExhaustedError together with a result
// that carries the failed paths and no masked rasters.
func (o *Orchestrator) Run(ctx context.Context, rasterPaths, projectAreaPaths []string, outputDir string) (*RunResult, error) {
	o.log.Info("pipeline: starting run",
		zap.Int("rasters", len(rasterPaths)),
		zap.Int("project_area_files", len(projectAreaPaths)),
		zap.String("output_dir", outputDir),
		zap.Int("workers", o.opts.Workers),
	)
	result := &RunResult{}

	track := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, err := fn()
		pr := PhaseResult{Name: name, Duration: time.Since(start).Milliseconds(), Metadata: meta}
		if err != nil {
			pr.Status = "failed"
			pr.Error = err.Error()
			o.log.Error("pipeline: phase failed", zap.String("phase", name), zap.Int64("duration_ms", pr.Duration), zap.Error(err))
		} else {
			pr.Status = "complete"
			o.log.Info("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", pr.Duration))
		}
		result.Phases = append(result.Phases, pr)
		return err
	}

	// ===== Phase 1: project area =====
	var project []geo.Polygon
	err := track("project_area", func() (map[string]any, error) {
		polys, err := o.deps.Loader.Load(projectAreaPaths)
		if len(polys) == 0 {
			if err == nil {
				err = geo.ErrNoPolygons
			}
			return nil, eris.Wrap(err, "pipeline: load project area")
		}
		if err != nil {
			o.log.Warn("pipeline: some project area files were skipped", zap.Error(err))
		}
		project = polys
		return map[string]any{"polygons": len(polys)}, nil
	})
	if err != nil {
		return result, err
	}
	result.ProjectPolygons = len(project)
	o.deps.Observer.Polygons("project_area", project)

	// ===== Phase 2: water =====
	resolver, release, err := o.deps.Water(ctx)
	if err != nil {
		return result, eris.Wrap(err, "pipeline: connect water source")
	}
	defer release()

	var water []geo.Polygon
	err = track("water", func() (map[string]any, error) {
		polys, err := resolver.Resolve(ctx, project)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: resolve water")
		}
		water = polys
		return map[string]any{"polygons": len(polys)}, nil
	})
	if err != nil {
		return result, err
	}
	result.WaterPolygons = len(water)
	o.deps.Observer.Polygons("water", water)

	// ===== Phase 3: unit correction =====
	var passed []units.Attempt
	err = track("unit_correction", func() (map[string]any, error) {
		if o.opts.SkipUnitCheck {
			o.log.Warn("pipeline: unit check skipped, masking rasters as given")
			for _, p := range rasterPaths {
				passed = append(passed, units.Attempt{Original: p, Working: p, State: units.Passed})
			}
			return map[string]any{"skipped": true}, nil
		}
		outcome, err := o.deps.Units.Process(ctx, rasterPaths, o.opts.Divisor, outputDir)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: unit correction")
		}
		passed = outcome.Passed
		result.Failed = outcome.FailedPaths()
		meta := map[string]any{"passed": len(outcome.Passed), "failed": len(outcome.Failed)}
		// Barrier: no raster is masked while any raster is implausible.
		return meta, outcome.Gate(o.opts.Divisor)
	})
	result.Passed = passed
	if err != nil {
		return result, err
	}

	// ===== Phase 4: masking =====
	errLog := newErrorLog(outputDir)
	defer errLog.Close()

	err = track("mask", func() (map[string]any, error) {
		results := make([]*mask.Result, len(passed))
		failures := make([]*MaskFailure, len(passed))

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(o.opts.Workers)
		for i, a := range passed {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				res, err := o.maskOne(a.Working, project, water, outputDir)
				if err != nil {
					errLog.Record(a.Working, err)
					failures[i] = &MaskFailure{Path: a.Working, Error: err.Error()}
					return nil
				}
				o.deps.Observer.Masked(res)
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i := range passed {
			if results[i] != nil {
				result.Results = append(result.Results, results[i])
			}
			if failures[i] != nil {
				result.MaskFailures = append(result.MaskFailures, *failures[i])
			}
		}
		return map[string]any{"masked": len(result.Results), "failed": len(result.MaskFailures)}, nil
	})
	if err != nil {
		return result, err
	}
	result.ErrorLog = errLog.Path()

	if err := o.deps.Observer.Flush(); err != nil {
		o.log.Warn("pipeline: snapshot flush failed", zap.Error(err))
	}

	o.log.Info("pipeline: run complete",
		zap.Int("masked", len(result.Results)),
		zap.Int("mask_failures", len(result.MaskFailures)),
	)
	return result, nil
}

func (o *Orchestrator) maskOne(path string, project, water []geo.Polygon, outputDir string) (res *mask.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: masking %s panicked: %v", path, r)
		}
	}()
	r, err := o.deps.Store.Read(path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read raster")
	}
	return o.deps.Masker.Mask(r, project, water, outputDir)
}

// IsExhausted reports whether err is the batch-fatal unit-correction failure.
func IsExhausted(err error) (*units.ExhaustedError, bool) {
	var ex *units.ExhaustedError
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}
