package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/bodymeasure/internal/sweep"
)

// SweepRun is the stored header of a sweep.
type SweepRun struct {
	RunID         string
	CreatedAt     time.Time
	Key           string
	PolicyVersion string
	BaseConfigID  string
	Dimensions    []sweep.Dimension
	CaseCount     int
}

// SaveSweep writes a sweep report under runID.
func (s *Store) SaveSweep(ctx context.Context, runID string, createdAt time.Time, rep *sweep.Report) error {
	dims, err := json.Marshal(rep.Dimensions)
	if err != nil {
		return fmt.Errorf("encoding dimensions for %s: %w", runID, err)
	}

	err = retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sweep_runs (
				run_id, created_at, measurement_key, policy_version, base_config_id,
				dimensions_json, case_count
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, formatTime(createdAt), rep.Key, rep.PolicyVersion, rep.BaseConfigID,
			string(dims), rep.CaseCount,
		); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sweep_rows (
				run_id, grid_index, rank, config_id, params_json, total, valid,
				contract_failures, execution_failures, degenerate, fallbacks,
				mean, stddev, cv_pct, fallback_rate_pct, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rep.Rows {
			params, err := json.Marshal(r.ParamMap(rep.Dimensions))
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				runID, r.Index, r.Rank, nullStr(r.ConfigID), string(params), r.Total, r.Valid,
				r.ContractFailures, r.ExecutionFailures, r.Degenerate, r.Fallbacks,
				nullFloat(r.Mean), nullFloat(r.StdDev), nullFloat(r.CVPct), nullFloat(r.FallbackRatePct),
				nullStr(r.Error),
			); err != nil {
				return fmt.Errorf("row %d: %w", r.Index, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("saving sweep %s: %w", runID, err)
	}
	return nil
}

// GetSweep returns the stored report for runID with rows in rank order.
func (s *Store) GetSweep(ctx context.Context, runID string) (*SweepRun, *sweep.Report, error) {
	var run SweepRun
	var created, dims string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, measurement_key, policy_version, base_config_id, dimensions_json, case_count
		FROM sweep_runs
		WHERE run_id = ?`, runID).Scan(
		&run.RunID, &created, &run.Key, &run.PolicyVersion, &run.BaseConfigID, &dims, &run.CaseCount)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("sweep %s not found", runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying sweep %s: %w", runID, err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, nil, fmt.Errorf("parsing created_at for sweep %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(dims), &run.Dimensions); err != nil {
		return nil, nil, fmt.Errorf("decoding dimensions for sweep %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT grid_index, rank, config_id, params_json, total, valid,
		       contract_failures, execution_failures, degenerate, fallbacks,
		       mean, stddev, cv_pct, fallback_rate_pct, error
		FROM sweep_rows
		WHERE run_id = ?
		ORDER BY rank`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying sweep rows for %s: %w", runID, err)
	}
	defer rows.Close()

	rep := &sweep.Report{
		Key:           run.Key,
		PolicyVersion: run.PolicyVersion,
		BaseConfigID:  run.BaseConfigID,
		Dimensions:    run.Dimensions,
		CaseCount:     run.CaseCount,
	}
	for rows.Next() {
		var r sweep.Row
		var configID, errMsg sql.NullString
		var params string
		var mean, std, cv, fb sql.NullFloat64
		if err := rows.Scan(&r.Index, &r.Rank, &configID, &params, &r.Total, &r.Valid,
			&r.ContractFailures, &r.ExecutionFailures, &r.Degenerate, &r.Fallbacks,
			&mean, &std, &cv, &fb, &errMsg); err != nil {
			return nil, nil, fmt.Errorf("scanning sweep row: %w", err)
		}
		var pm map[string]float64
		if err := json.Unmarshal([]byte(params), &pm); err != nil {
			return nil, nil, fmt.Errorf("decoding params for sweep %s row %d: %w", runID, r.Index, err)
		}
		r.Values = make([]float64, len(run.Dimensions))
		for i, d := range run.Dimensions {
			r.Values[i] = pm[d.Name]
		}
		r.ConfigID, r.Error = configID.String, errMsg.String
		r.Mean, r.StdDev, r.CVPct, r.FallbackRatePct = floatOrNaN(mean), floatOrNaN(std), floatOrNaN(cv), floatOrNaN(fb)
		rep.Rows = append(rep.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return &run, rep, nil
}
