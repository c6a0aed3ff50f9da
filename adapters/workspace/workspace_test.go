package workspace

import (
	"context"
	"path/filepath"
	"testing"

	"landed-cost/internal/config"
	"landed-cost/internal/errors"
)

var fixture = filepath.Join("..", "..", "testdata", "laptop.hcl")

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	dbPath := filepath.Join(t.TempDir(), "costs.db")

	ws, err := Open(context.Background(), cfg, Options{ModelPath: fixture, SQLitePath: dbPath, Strict: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ws.Close()

	if ws.DB == nil || ws.DB.Path() != dbPath {
		t.Errorf("database not opened")
	}
	if ws.Metrics == nil {
		t.Error("metrics enabled in config but no collector")
	}
	if len(ws.Model.Sources) != 2 {
		t.Errorf("sources = %v, want file and database", ws.Model.Sources)
	}
	if _, err := ws.Engine.Calculate(context.Background()); err != nil {
		t.Errorf("strict calculation of the fixture failed: %v", err)
	}
}

func TestOpenMissingPath(t *testing.T) {
	_, err := Open(context.Background(), config.Default(), Options{ModelPath: filepath.Join(t.TempDir(), "nope")})
	if !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected input error, got %v", err)
	}
}
