package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// ForecastRun is one persisted forecast request and, once finished, its outcome.
type ForecastRun struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Model        string          `json:"model"`
	Horizon      int             `json:"horizon"`
	MonthsAmount int             `json:"months_amount"`
	Status       RunStatus       `json:"status"`
	Predictions  []float64       `json:"predictions"`
	FutureMonths []core.MonthKey `json:"future_months"`
	ErrorMetric  *float64        `json:"error_metric"`
	Params       map[string]any  `json:"params,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// CreateForecastRun stores a new run. An empty ID is replaced with a UUID and
// an empty status with pending; both are written back into run.
func (r *SQLiteRepository) CreateForecastRun(ctx context.Context, run *ForecastRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	now := time.Now().UTC()
	run.CreatedAt, run.UpdatedAt = now, now

	enc, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO forecast_runs (id, user_id, model, horizon, months_amount, status,
			predictions, future_months, error_metric, params, error, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.Model, run.Horizon, run.MonthsAmount, string(run.Status),
		enc.predictions, enc.futureMonths, enc.errorMetric, enc.params, run.Error,
		now.Format(timeLayout), now.Format(timeLayout), enc.completedAt)
	if err != nil {
		return fmt.Errorf("insert forecast run: %w", err)
	}
	return nil
}

// UpdateForecastRun overwrites the mutable fields of an existing run.
func (r *SQLiteRepository) UpdateForecastRun(ctx context.Context, run *ForecastRun) error {
	run.UpdatedAt = time.Now().UTC()
	if run.Status.Terminal() && run.CompletedAt == nil {
		t := run.UpdatedAt
		run.CompletedAt = &t
	}
	enc, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE forecast_runs SET status = ?, predictions = ?, future_months = ?, error_metric = ?,
			params = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(run.Status), enc.predictions, enc.futureMonths, enc.errorMetric, enc.params,
		run.Error, run.UpdatedAt.Format(timeLayout), enc.completedAt, run.ID)
	if err != nil {
		return fmt.Errorf("update forecast run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update forecast run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("forecast run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetForecastRun(ctx context.Context, id string) (*ForecastRun, error) {
	row := r.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("forecast run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListForecastRuns returns the user's most recent runs first.
func (r *SQLiteRepository) ListForecastRuns(ctx context.Context, userID string, limit int) ([]*ForecastRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectRuns+` WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query forecast runs: %w", err)
	}
	defer rows.Close()

	var out []*ForecastRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast runs: %w", err)
	}
	return out, nil
}

// ResetStaleRuns fails runs left running by a crashed worker.
func (r *SQLiteRepository) ResetStaleRuns(ctx context.Context, olderThan time.Time) (int, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx, `
		UPDATE forecast_runs SET status = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE status = ? AND updated_at < ?`,
		string(RunFailed), "abandoned by worker", now, now, string(RunRunning), olderThan.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("reset stale runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const selectRuns = `
	SELECT id, user_id, model, horizon, months_amount, status, predictions, future_months,
		error_metric, params, error, created_at, updated_at, completed_at
	FROM forecast_runs`

type rowScanner interface {
	Scan(dest ...any) error
}

type encodedRun struct {
	predictions  string
	futureMonths string
	params       string
	errorMetric  sql.NullFloat64
	completedAt  sql.NullString
}

func encodeRun(run *ForecastRun) (encodedRun, error) {
	var enc encodedRun
	preds := run.Predictions
	if preds == nil {
		preds = []float64{}
	}
	b, err := json.Marshal(preds)
	if err != nil {
		return enc, fmt.Errorf("encode predictions: %w", err)
	}
	enc.predictions = string(b)

	months := run.FutureMonths
	if months == nil {
		months = []core.MonthKey{}
	}
	if b, err = json.Marshal(months); err != nil {
		return enc, fmt.Errorf("encode future months: %w", err)
	}
	enc.futureMonths = string(b)

	params := run.Params
	if params == nil {
		params = map[string]any{}
	}
	if b, err = json.Marshal(params); err != nil {
		return enc, fmt.Errorf("encode params: %w", err)
	}
	enc.params = string(b)

	if run.ErrorMetric != nil {
		enc.errorMetric = sql.NullFloat64{Float64: *run.ErrorMetric, Valid: true}
	}
	if run.CompletedAt != nil {
		enc.completedAt = sql.NullString{String: run.CompletedAt.UTC().Format(timeLayout), Valid: true}
	}
	return enc, nil
}

func scanRun(s rowScanner) (*ForecastRun, error) {
	var (
		run                         ForecastRun
		status, preds, months, prms string
		created, updated            string
		metric                      sql.NullFloat64
		completed                   sql.NullString
	)
	if err := s.Scan(&run.ID, &run.UserID, &run.Model, &run.Horizon, &run.MonthsAmount, &status,
		&preds, &months, &metric, &prms, &run.Error, &created, &updated, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan forecast run: %w", err)
	}
	run.Status = RunStatus(status)
	if err := json.Unmarshal([]byte(preds), &run.Predictions); err != nil {
		return nil, fmt.Errorf("forecast run %s: decode predictions: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(months), &run.FutureMonths); err != nil {
		return nil, fmt.Errorf("forecast run %s: decode future months: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(prms), &run.Params); err != nil {
		return nil, fmt.Errorf("forecast run %s: decode params: %w", run.ID, err)
	}
	if len(run.Params) == 0 {
		run.Params = nil
	}
	if metric.Valid {
		v := metric.Float64
		run.ErrorMetric = &v
	}
	var err error
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("forecast run %s: parse created_at: %w", run.ID, err)
	}
	if run.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("forecast run %s: parse updated_at: %w", run.ID, err)
	}
	if completed.Valid {
		t, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return nil, fmt.Errorf("forecast run %s: parse completed_at: %w", run.ID, err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}
