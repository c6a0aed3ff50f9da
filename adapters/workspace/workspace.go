// Package workspace assembles a calculation from its inputs: definition
// files, an optional sqlite database and the configuration.
package workspace

import (
	"context"
	"os"

	"go.uber.org/zap"

	"landed-cost/adapters/hcl"
	"landed-cost/adapters/sqlite"
	"landed-cost/core/engine"
	"landed-cost/core/model"
	"landed-cost/internal/config"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
	"landed-cost/internal/metrics"
)

// Options locates the inputs
type Options struct {
	ModelPath  string
	SQLitePath string

	// Strict overrides engine.strict when set
	Strict bool

	// Metrics is used instead of a new collector when non-nil
	Metrics *metrics.Collector
}

// Workspace is a loaded model, its engine and the optional database
type Workspace struct {
	Config  *config.Config
	Model   *model.Model
	Engine  *engine.Engine
	Metrics *metrics.Collector
	DB      *sqlite.DB
}

// Open loads definitions, merges database tables when a database is
// configured and builds the engine
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Workspace, error) {
	if opts.ModelPath == "" {
		opts.ModelPath = cfg.Data.ModelPath
	}
	if opts.SQLitePath == "" {
		opts.SQLitePath = cfg.Data.SQLitePath
	}
	if _, err := os.Stat(opts.ModelPath); os.IsNotExist(err) {
		return nil, errors.Newf(errors.TypeInput, "path does not exist: %s", opts.ModelPath)
	}

	m, err := hcl.NewLoader().Load(opts.ModelPath)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{Config: cfg, Model: m}
	if opts.SQLitePath != "" {
		db, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		ws.DB = db
		if err := db.LoadInto(ctx, m); err != nil {
			ws.Close()
			return nil, err
		}
	}

	eo := engine.OptionsFromConfig(cfg)
	if opts.Strict {
		eo.Strict = true
	}
	switch {
	case opts.Metrics != nil:
		ws.Metrics = opts.Metrics
	case cfg.Metrics.Enabled:
		ws.Metrics = metrics.New()
	}
	eo.Metrics = ws.Metrics

	e, err := engine.New(m, eo)
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.Engine = e

	logging.Debug("workspace opened",
		zap.Strings("sources", m.Sources),
		zap.Int("entities", len(m.Entities)),
		zap.Int("rules", len(m.Rules)))
	return ws, nil
}

// FlushMetrics writes the textfile exposition when configured
func (ws *Workspace) FlushMetrics() {
	path := ws.Config.Metrics.Textfile
	if ws.Metrics == nil || path == "" {
		return
	}
	if err := ws.Metrics.WriteTextfile(path); err != nil {
		logging.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
	}
}

// Close releases the database
func (ws *Workspace) Close() {
	if ws.DB != nil {
		_ = ws.DB.Close()
	}
}
