package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/parkworks/equity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	parks       INTEGER NOT NULL DEFAULT 0,
	output_path TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS park_scores (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	park_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	acres         REAL NOT NULL,
	heat_mean     REAL,
	heat_haz      REAL,
	coastal_haz   REAL NOT NULL,
	storm_haz     REAL NOT NULL,
	heat_vuln     REAL NOT NULL,
	flood_vuln    REAL NOT NULL,
	est_inv_total REAL NOT NULL,
	inv_norm      REAL NOT NULL,
	hazard_factor REAL,
	vul_factor    REAL,
	suitability   REAL,
	PRIMARY KEY (run_id, park_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_park_scores_run_id ON park_scores(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, parks int, outputPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, parks = ?, output_path = ?, finished_at = ? WHERE id = ?`,
		string(status), parks, outputPath, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, parks, output_path, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, parks, output_path, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveScores(ctx context.Context, runID string, scores []model.ParkScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin scores tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO park_scores (
			run_id, park_id, name, acres,
			heat_mean, heat_haz, coastal_haz, storm_haz,
			heat_vuln, flood_vuln, est_inv_total, inv_norm,
			hazard_factor, vul_factor, suitability
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare score insert")
	}
	defer stmt.Close()

	for _, sc := range scores {
		_, err := stmt.ExecContext(ctx,
			runID, sc.ParkID, sc.Name, sc.Acres,
			nullable(sc.HeatMean), nullable(sc.HeatHaz), sc.CoastalHaz, sc.StormHaz,
			sc.HeatVuln, sc.FloodVuln, sc.EstInvTotal, sc.InvNorm,
			nullable(sc.HazardFactor), nullable(sc.VulFactor), nullable(sc.Suitability),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert score for park %s", sc.ParkID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit scores")
}

func (s *SQLiteStore) GetScores(ctx context.Context, runID string) ([]model.ParkScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, park_id, name, acres,
			heat_mean, heat_haz, coastal_haz, storm_haz,
			heat_vuln, flood_vuln, est_inv_total, inv_norm,
			hazard_factor, vul_factor, suitability
		 FROM park_scores WHERE run_id = ? ORDER BY park_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scores for run %s", runID)
	}
	defer rows.Close()

	var scores []model.ParkScore
	for rows.Next() {
		var sc model.ParkScore
		var heatMean, heatHaz, hazard, vul, suit *float64
		err := rows.Scan(
			&sc.RunID, &sc.ParkID, &sc.Name, &sc.Acres,
			&heatMean, &heatHaz, &sc.CoastalHaz, &sc.StormHaz,
			&sc.HeatVuln, &sc.FloodVuln, &sc.EstInvTotal, &sc.InvNorm,
			&hazard, &vul, &suit,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		sc.HeatMean = fromNullable(heatMean)
		sc.HeatHaz = fromNullable(heatHaz)
		sc.HazardFactor = fromNullable(hazard)
		sc.VulFactor = fromNullable(vul)
		sc.Suitability = fromNullable(suit)
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: scores iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var outputPath sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &r.Parks, &outputPath, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if outputPath.Valid {
		r.OutputPath = outputPath.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
