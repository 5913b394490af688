package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/lidarqa/density-cli/internal/config"
	"github.com/lidarqa/density-cli/internal/pipeline"
)

const manifestName = "run_manifest.yaml"

type runManifest struct {
	RunID        string           `yaml:"run_id"`
	StartedAt    time.Time        `yaml:"started_at"`
	FinishedAt   time.Time        `yaml:"finished_at"`
	Status       string           `yaml:"status"`
	Error        string           `yaml:"error,omitempty"`
	Rasters      []string         `yaml:"rasters"`
	ProjectAreas []string         `yaml:"project_areas"`
	Settings     manifestSettings `yaml:"settings"`
	Passed       []manifestPassed `yaml:"passed,omitempty"`
	Failed       []string         `yaml:"failed,omitempty"`
	Masked       []manifestMasked `yaml:"masked,omitempty"`
	MaskFailures []manifestFailed `yaml:"mask_failures,omitempty"`
	ErrorLog     string           `yaml:"error_log,omitempty"`
	Phases       []manifestPhase  `yaml:"phases,omitempty"`
}

type manifestSettings struct {
	Divisor    float64  `yaml:"divisor"`
	Limit      float64  `yaml:"limit"`
	Workers    int      `yaml:"workers"`
	AllTouched bool     `yaml:"all_touched"`
	Layers     []string `yaml:"water_layers"`
}

type manifestPassed struct {
	Original       string  `yaml:"original"`
	Working        string  `yaml:"working"`
	Normalizations int     `yaml:"normalizations"`
	Median         float64 `yaml:"median"`
}

type manifestMasked struct {
	Source     string `yaml:"source"`
	Output     string `yaml:"output,omitempty"`
	DataType   string `yaml:"data_type"`
	ValidCells int    `yaml:"valid_cells"`
}

type manifestFailed struct {
	Path  string `yaml:"path"`
	Error string `yaml:"error"`
}

type manifestPhase struct {
	Name       string `yaml:"name"`
	Status     string `yaml:"status"`
	DurationMS int64  `yaml:"duration_ms"`
}

func newManifest(runID string, started time.Time, c *config.Config, rasters, areas []string) *runManifest {
	return &runManifest{
		RunID:        runID,
		StartedAt:    started.UTC(),
		Status:       "running",
		Rasters:      rasters,
		ProjectAreas: areas,
		Settings: manifestSettings{
			Divisor:    c.Units.Divisor,
			Limit:      c.Units.Limit,
			Workers:    c.Pipeline.Workers,
			AllTouched: c.Mask.AllTouched,
			Layers:     c.Water.Layers,
		},
	}
}

func (m *runManifest) complete(res *pipeline.RunResult, runErr error, finished time.Time) {
	m.FinishedAt = finished.UTC()
	switch _, exhausted := pipeline.IsExhausted(runErr); {
	case runErr == nil:
		m.Status = "complete"
	case exhausted:
		m.Status = "units_exhausted"
		m.Error = runErr.Error()
	default:
		m.Status = "failed"
		m.Error = runErr.Error()
	}
	if res == nil {
		return
	}

	for _, a := range res.Passed {
		m.Passed = append(m.Passed, manifestPassed{
			Original:       a.Original,
			Working:        a.Working,
			Normalizations: a.Attempts,
			Median:         a.Median,
		})
	}
	m.Failed = res.Failed
	for _, r := range res.Results {
		m.Masked = append(m.Masked, manifestMasked{
			Source:     r.Source,
			Output:     r.OutputPath,
			DataType:   r.DataType.String(),
			ValidCells: r.Valid(),
		})
	}
	for _, f := range res.MaskFailures {
		m.MaskFailures = append(m.MaskFailures, manifestFailed{Path: f.Path, Error: f.Error})
	}
	m.ErrorLog = res.ErrorLog
	for _, p := range res.Phases {
		m.Phases = append(m.Phases, manifestPhase{Name: p.Name, Status: p.Status, DurationMS: p.Duration})
	}
}

func writeManifest(outputDir string, m *runManifest) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "manifest: create output dir")
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "manifest: marshal")
	}
	path := filepath.Join(outputDir, manifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "manifest: write")
	}
	return path, nil
}
