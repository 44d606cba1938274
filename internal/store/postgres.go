package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/parkworks/equity-cli/internal/db"
	"github.com/parkworks/equity-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
	"complete_run": `UPDATE runs SET status = $1, parks = $2, output_path = $3, finished_at = $4 WHERE id = $5`,
	"get_run":      `SELECT id, status, parks, output_path, started_at, finished_at FROM runs WHERE id = $1`,
	"get_scores": `SELECT run_id, park_id, name, acres,
		heat_mean, heat_haz, coastal_haz, storm_haz,
		heat_vuln, flood_vuln, est_inv_total, inv_norm,
		hazard_factor, vul_factor, suitability
	FROM park_scores WHERE run_id = $1 ORDER BY park_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	parks       INTEGER NOT NULL DEFAULT 0,
	output_path TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS park_scores (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	park_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	acres         DOUBLE PRECISION NOT NULL,
	heat_mean     DOUBLE PRECISION,
	heat_haz      DOUBLE PRECISION,
	coastal_haz   DOUBLE PRECISION NOT NULL,
	storm_haz     DOUBLE PRECISION NOT NULL,
	heat_vuln     DOUBLE PRECISION NOT NULL,
	flood_vuln    DOUBLE PRECISION NOT NULL,
	est_inv_total DOUBLE PRECISION NOT NULL,
	inv_norm      DOUBLE PRECISION NOT NULL,
	hazard_factor DOUBLE PRECISION,
	vul_factor    DOUBLE PRECISION,
	suitability   DOUBLE PRECISION,
	PRIMARY KEY (run_id, park_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_park_scores_run_id ON park_scores(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, parks int, outputPath string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, parks = $2, output_path = $3, finished_at = $4 WHERE id = $5`,
		string(status), parks, outputPath, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, parks, output_path, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	)
	var r model.Run
	var outputPath *string
	var finishedAt *time.Time
	err := row.Scan(&r.ID, &r.Status, &r.Parks, &outputPath, &r.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if outputPath != nil {
		r.OutputPath = *outputPath
	}
	r.FinishedAt = finishedAt
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, parks, output_path, started_at, finished_at FROM runs WHERE 1=1`
	var args []any
	n := 0

	if filter.Status != "" {
		n++
		query += ` AND status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += ` LIMIT $` + strconv.Itoa(n)
	args = append(args, limit)

	if filter.Offset > 0 {
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var outputPath *string
		var finishedAt *time.Time
		if err := rows.Scan(&r.ID, &r.Status, &r.Parks, &outputPath, &r.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if outputPath != nil {
			r.OutputPath = *outputPath
		}
		r.FinishedAt = finishedAt
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var scoreColumns = []string{
	"run_id", "park_id", "name", "acres",
	"heat_mean", "heat_haz", "coastal_haz", "storm_haz",
	"heat_vuln", "flood_vuln", "est_inv_total", "inv_norm",
	"hazard_factor", "vul_factor", "suitability",
}

func (s *PostgresStore) SaveScores(ctx context.Context, runID string, scores []model.ParkScore) error {
	rows := make([][]any, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, []any{
			runID, sc.ParkID, sc.Name, sc.Acres,
			nullable(sc.HeatMean), nullable(sc.HeatHaz), sc.CoastalHaz, sc.StormHaz,
			sc.HeatVuln, sc.FloodVuln, sc.EstInvTotal, sc.InvNorm,
			nullable(sc.HazardFactor), nullable(sc.VulFactor), nullable(sc.Suitability),
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "park_scores", scoreColumns, rows)
	return eris.Wrapf(err, "postgres: save scores for run %s", runID)
}

func (s *PostgresStore) GetScores(ctx context.Context, runID string) ([]model.ParkScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, park_id, name, acres,
			heat_mean, heat_haz, coastal_haz, storm_haz,
			heat_vuln, flood_vuln, est_inv_total, inv_norm,
			hazard_factor, vul_factor, suitability
		 FROM park_scores WHERE run_id = $1 ORDER BY park_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scores for run %s", runID)
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
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		sc.HeatMean = fromNullable(heatMean)
		sc.HeatHaz = fromNullable(heatHaz)
		sc.HazardFactor = fromNullable(hazard)
		sc.VulFactor = fromNullable(vul)
		sc.Suitability = fromNullable(suit)
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "postgres: scores iterate")
}
