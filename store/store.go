// Package store journals tuning results to SQLite so that a long run can be
// inspected, ranked, or resumed from another process.
package store

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tune"
)

// Store is a results journal backed by modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn (a file path or ":memory:").
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers from parallel tuning runs.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS results (
	run_id      TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	model       TEXT NOT NULL,
	metric_set  TEXT NOT NULL,
	params      TEXT,
	folds       INTEGER NOT NULL,
	created_at  DATETIME NOT NULL,
	PRIMARY KEY (run_id, workflow_id)
);

CREATE TABLE IF NOT EXISTS configs (
	run_id      TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	config_id   TEXT NOT NULL,
	position    INTEGER NOT NULL,
	point       TEXT NOT NULL,
	PRIMARY KEY (run_id, workflow_id, config_id),
	FOREIGN KEY (run_id, workflow_id) REFERENCES results(run_id, workflow_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id      TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	config_id   TEXT NOT NULL,
	fold        TEXT NOT NULL,
	metric      TEXT NOT NULL,
	estimator   TEXT NOT NULL,
	value       REAL,
	FOREIGN KEY (run_id, workflow_id) REFERENCES results(run_id, workflow_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS notes (
	run_id      TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	config_id   TEXT NOT NULL,
	fold        TEXT NOT NULL,
	stage       TEXT NOT NULL,
	message     TEXT NOT NULL,
	FOREIGN KEY (run_id, workflow_id) REFERENCES results(run_id, workflow_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS race_log (
	run_id      TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	config_id   TEXT NOT NULL,
	after_fold  INTEGER NOT NULL,
	mean        REAL,
	best_mean   REAL,
	p_value     REAL,
	FOREIGN KEY (run_id, workflow_id) REFERENCES results(run_id, workflow_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_metrics_run ON metrics(run_id, workflow_id);
CREATE INDEX IF NOT EXISTS idx_notes_run ON notes(run_id, workflow_id);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return errors.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResults writes res in one transaction, replacing any earlier copy of
// the same run and workflow. It satisfies tune.Journal.
func (s *Store) SaveResults(ctx context.Context, res *tune.Results) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM results WHERE run_id = ? AND workflow_id = ?`,
		res.RunID, res.WorkflowID,
	); err != nil {
		return errors.Wrapf(err, "sqlite: replace results %s/%s", res.RunID, res.WorkflowID)
	}

	metricSet, err := json.Marshal(res.MetricSet.Names())
	if err != nil {
		return errors.Wrap(err, "sqlite: marshal metric set")
	}
	var params []byte
	if res.Grid != nil {
		if params, err = json.Marshal(res.Grid.Params); err != nil {
			return errors.Wrap(err, "sqlite: marshal params")
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO results (run_id, workflow_id, model, metric_set, params, folds, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.WorkflowID, res.Model, string(metricSet), nullString(params), res.Folds, time.Now().UTC(),
	); err != nil {
		return errors.Wrap(err, "sqlite: insert results")
	}

	if res.Grid != nil {
		for i, id := range res.ConfigIDs {
			point, mErr := json.Marshal(res.Grid.Points[i])
			if mErr != nil {
				return errors.Wrap(mErr, "sqlite: marshal point")
			}
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO configs (run_id, workflow_id, config_id, position, point) VALUES (?, ?, ?, ?, ?)`,
				res.RunID, res.WorkflowID, id, i, string(point),
			); err != nil {
				return errors.Wrap(err, "sqlite: insert config")
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics (run_id, workflow_id, config_id, fold, metric, estimator, value) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "sqlite: prepare metrics")
	}
	defer stmt.Close()
	for _, m := range res.Metrics {
		if _, err = stmt.ExecContext(ctx,
			res.RunID, res.WorkflowID, m.ConfigID, m.Fold, m.Metric, m.Estimator, nullFloat(m.Value),
		); err != nil {
			return errors.Wrap(err, "sqlite: insert metric")
		}
	}

	for _, n := range res.Notes {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO notes (run_id, workflow_id, config_id, fold, stage, message) VALUES (?, ?, ?, ?, ?, ?)`,
			res.RunID, res.WorkflowID, n.ConfigID, n.Fold, n.Stage, n.Message,
		); err != nil {
			return errors.Wrap(err, "sqlite: insert note")
		}
	}

	for _, e := range res.RaceLog {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO race_log (run_id, workflow_id, config_id, after_fold, mean, best_mean, p_value) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, res.WorkflowID, e.ConfigID, e.AfterFold, nullFloat(e.Mean), nullFloat(e.BestMean), nullFloat(e.PValue),
		); err != nil {
			return errors.Wrap(err, "sqlite: insert race entry")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite: commit")
	}
	return nil
}

// WorkflowIDs lists the workflows journaled under runID, in order.
func (s *Store) WorkflowIDs(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id FROM results WHERE run_id = ? ORDER BY workflow_id`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: list workflows %s", runID)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "sqlite: scan workflow")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite: list workflows")
	}
	if len(ids) == 0 {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "run %s", runID)
	}
	return ids, nil
}

// LoadResults reads one journaled Results back.
func (s *Store) LoadResults(ctx context.Context, runID, workflowID string) (*tune.Results, error) {
	res := &tune.Results{RunID: runID, WorkflowID: workflowID}
	var metricSet string
	var params sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT model, metric_set, params, folds FROM results WHERE run_id = ? AND workflow_id = ?`,
		runID, workflowID,
	).Scan(&res.Model, &metricSet, &params, &res.Folds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "run %s workflow %s", runID, workflowID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: get results")
	}

	var names []string
	if err := json.Unmarshal([]byte(metricSet), &names); err != nil {
		return nil, errors.Wrap(err, "sqlite: unmarshal metric set")
	}
	if res.MetricSet, err = metrics.NewSet(names...); err != nil {
		return nil, err
	}

	points, err := s.loadConfigs(ctx, res)
	if err != nil {
		return nil, err
	}
	if params.Valid {
		var set param.Set
		if err := json.Unmarshal([]byte(params.String), &set); err != nil {
			return nil, errors.Wrap(err, "sqlite: unmarshal params")
		}
		res.Grid = &param.Grid{Params: set}
		for _, id := range res.ConfigIDs {
			res.Grid.Points = append(res.Grid.Points, points[id])
		}
	}

	if err := s.loadMetrics(ctx, res, points); err != nil {
		return nil, err
	}
	if err := s.loadNotes(ctx, res); err != nil {
		return nil, err
	}
	if err := s.loadRaceLog(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// LoadSummaries summarizes every workflow of a run, keyed by workflow id.
func (s *Store) LoadSummaries(ctx context.Context, runID string) (map[string][]tune.Summary, error) {
	ids, err := s.WorkflowIDs(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]tune.Summary, len(ids))
	for _, id := range ids {
		res, err := s.LoadResults(ctx, runID, id)
		if err != nil {
			return nil, err
		}
		out[id] = res.Summarize()
	}
	return out, nil
}

func (s *Store) loadConfigs(ctx context.Context, res *tune.Results) (map[string]param.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT config_id, point FROM configs WHERE run_id = ? AND workflow_id = ? ORDER BY position`,
		res.RunID, res.WorkflowID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: query configs")
	}
	defer rows.Close()
	points := map[string]param.Point{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(err, "sqlite: scan config")
		}
		var p param.Point
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, errors.Wrap(err, "sqlite: unmarshal point")
		}
		res.ConfigIDs = append(res.ConfigIDs, id)
		points[id] = p
	}
	return points, errors.Wrap(rows.Err(), "sqlite: query configs")
}

func (s *Store) loadMetrics(ctx context.Context, res *tune.Results, points map[string]param.Point) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT config_id, fold, metric, estimator, value FROM metrics WHERE run_id = ? AND workflow_id = ? ORDER BY rowid`,
		res.RunID, res.WorkflowID)
	if err != nil {
		return errors.Wrap(err, "sqlite: query metrics")
	}
	defer rows.Close()
	for rows.Next() {
		var m tune.MetricResult
		var v sql.NullFloat64
		if err := rows.Scan(&m.ConfigID, &m.Fold, &m.Metric, &m.Estimator, &v); err != nil {
			return errors.Wrap(err, "sqlite: scan metric")
		}
		m.Point = points[m.ConfigID].Clone()
		m.Value = fromNull(v)
		res.Metrics = append(res.Metrics, m)
	}
	return errors.Wrap(rows.Err(), "sqlite: query metrics")
}

func (s *Store) loadNotes(ctx context.Context, res *tune.Results) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT config_id, fold, stage, message FROM notes WHERE run_id = ? AND workflow_id = ? ORDER BY rowid`,
		res.RunID, res.WorkflowID)
	if err != nil {
		return errors.Wrap(err, "sqlite: query notes")
	}
	defer rows.Close()
	for rows.Next() {
		var n tune.Note
		if err := rows.Scan(&n.ConfigID, &n.Fold, &n.Stage, &n.Message); err != nil {
			return errors.Wrap(err, "sqlite: scan note")
		}
		res.Notes = append(res.Notes, n)
	}
	return errors.Wrap(rows.Err(), "sqlite: query notes")
}

func (s *Store) loadRaceLog(ctx context.Context, res *tune.Results) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT config_id, after_fold, mean, best_mean, p_value FROM race_log WHERE run_id = ? AND workflow_id = ? ORDER BY rowid`,
		res.RunID, res.WorkflowID)
	if err != nil {
		return errors.Wrap(err, "sqlite: query race log")
	}
	defer rows.Close()
	for rows.Next() {
		var e tune.RaceEntry
		var mean, best, p sql.NullFloat64
		if err := rows.Scan(&e.ConfigID, &e.AfterFold, &mean, &best, &p); err != nil {
			return errors.Wrap(err, "sqlite: scan race entry")
		}
		e.Mean, e.BestMean, e.PValue = fromNull(mean), fromNull(best), fromNull(p)
		res.RaceLog = append(res.RaceLog, e)
	}
	return errors.Wrap(rows.Err(), "sqlite: query race log")
}

// SQLite has no NaN; undefined estimates are stored as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
