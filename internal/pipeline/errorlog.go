package pipeline

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorLogName is the per-run masking error log under the output directory.
const ErrorLogName = "masking_errors.log"

// errorLog is a JSON file logger that is only created once a raster fails
// to mask, so clean runs leave no file behind.
type errorLog struct {
	path string

	mu     sync.Mutex
	logger *zap.Logger
	wrote  bool
}

func newErrorLog(outputDir string) *errorLog {
	return &errorLog{path: filepath.Join(outputDir, ErrorLogName)}
}

// Record appends one failure. Falling back to the global logger keeps the
// failure visible if the file cannot be opened.
func (l *errorLog) Record(rasterPath string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logger == nil {
		lg, openErr := openFileLogger(l.path)
		if openErr != nil {
			zap.L().Error("pipeline: cannot open masking error log", zap.String("path", l.path), zap.Error(openErr))
			lg = zap.L()
		}
		l.logger = lg
	}
	l.logger.Error("masking failed", zap.String("raster", rasterPath), zap.Error(err))
	l.wrote = true
}

// Path returns the log file path, or "" when nothing was recorded.
func (l *errorLog) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.wrote {
		return ""
	}
	return l.path
}

func (l *errorLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logger != nil {
		_ = l.logger.Sync()
	}
}

func openFileLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
