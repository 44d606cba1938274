// Package store persists analysis runs and per-park scores. Two backends
// exist: SQLite for local single-user work and PostgreSQL for shared
// deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/parkworks/equity-cli/internal/config"
	"github.com/parkworks/equity-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, parks int, outputPath string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Scores
	SaveScores(ctx context.Context, runID string, scores []model.ParkScore) error
	GetScores(ctx context.Context, runID string) ([]model.ParkScore, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// nullable converts a tri-state metric to a SQL parameter: NULL when the
// metric was never computed.
func nullable(f model.Float) any {
	if !f.Valid {
		return nil
	}
	return f.V
}

// fromNullable rebuilds a tri-state metric from a scanned NULLable column.
func fromNullable(v *float64) model.Float {
	if v == nil {
		return model.Missing()
	}
	return model.Value(*v)
}
