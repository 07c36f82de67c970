package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/bodymeasure/internal/measure"
	"github.com/banshee-data/bodymeasure/internal/verify"
)

// VerifyRun is the stored header of a verification run.
type VerifyRun struct {
	RunID          string
	CreatedAt      time.Time
	DatasetPath    string
	PolicyVersion  string
	SourceRevision string
	TotalRecords   int
	NaNCount       int
	NonfiniteCount int
	MismatchCount  int
	Summary        json.RawMessage
}

// SaveVerify writes the report's summary and records in one transaction,
// keyed by the summary's run ID.
func (s *Store) SaveVerify(ctx context.Context, rep *verify.Report) error {
	sum := rep.Summary
	runID := sum.Provenance.RunID
	if runID == "" {
		return fmt.Errorf("verify report has no run id")
	}
	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encoding summary for %s: %w", runID, err)
	}

	err = retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO verify_runs (
				run_id, created_at, dataset_path, policy_version, source_revision,
				total_records, nan_count, nonfinite_count, mismatch_count, summary_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			formatTime(sum.Provenance.Timestamp),
			sum.Provenance.DatasetPath,
			sum.Provenance.PolicyVersion,
			nullStr(sum.Provenance.SourceRevision),
			sum.TotalRecords,
			sum.NaNCount,
			sum.NonfiniteCount,
			sum.DeterminismMismatchCount,
			string(summaryJSON),
		); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO verify_records (
				run_id, case_id, measurement_key, value, section_id, method_tag,
				warnings, failure_type, fallback, determinism_mismatch, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rep.Records {
			if _, err := stmt.ExecContext(ctx,
				runID, r.CaseID, r.Key, nullFloat(r.Value),
				nullStr(r.SectionID), nullStr(r.MethodTag), nullStr(r.WarningList()),
				nullStr(string(r.FailureType)), boolInt(r.Fallback), boolInt(r.Mismatch), nullStr(r.Error),
			); err != nil {
				return fmt.Errorf("record %s/%s: %w", r.CaseID, r.Key, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("saving verify run %s: %w", runID, err)
	}
	return nil
}

// VerifyRuns lists stored runs, newest first.
func (s *Store) VerifyRuns(ctx context.Context) ([]VerifyRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, dataset_path, policy_version, source_revision,
		       total_records, nan_count, nonfinite_count, mismatch_count, summary_json
		FROM verify_runs
		ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("querying verify runs: %w", err)
	}
	defer rows.Close()

	var out []VerifyRun
	for rows.Next() {
		var run VerifyRun
		var created, summary string
		var revision sql.NullString
		if err := rows.Scan(&run.RunID, &created, &run.DatasetPath, &run.PolicyVersion, &revision,
			&run.TotalRecords, &run.NaNCount, &run.NonfiniteCount, &run.MismatchCount, &summary); err != nil {
			return nil, fmt.Errorf("scanning verify run: %w", err)
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing created_at for verify run %s: %w", run.RunID, err)
		}
		run.SourceRevision = revision.String
		run.Summary = json.RawMessage(summary)
		out = append(out, run)
	}
	return out, rows.Err()
}

// VerifyRecords returns a run's records ordered by case and key.
func (s *Store) VerifyRecords(ctx context.Context, runID string) ([]verify.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, measurement_key, value, section_id, method_tag, warnings,
		       failure_type, fallback, determinism_mismatch, error
		FROM verify_records
		WHERE run_id = ?
		ORDER BY case_id, measurement_key`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying verify records for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []verify.Record
	for rows.Next() {
		var r verify.Record
		var value sql.NullFloat64
		var sectionID, methodTag, warnings, failureType, errMsg sql.NullString
		var fallback, mismatch int
		if err := rows.Scan(&r.CaseID, &r.Key, &value, &sectionID, &methodTag, &warnings,
			&failureType, &fallback, &mismatch, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning verify record: %w", err)
		}
		r.Value = floatOrNaN(value)
		r.SectionID, r.MethodTag, r.Error = sectionID.String, methodTag.String, errMsg.String
		r.FailureType = verify.FailureType(failureType.String)
		r.Fallback, r.Mismatch = fallback != 0, mismatch != 0
		if warnings.String != "" {
			for _, w := range strings.Split(warnings.String, "|") {
				r.Warnings = append(r.Warnings, measure.WarningCode(w))
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailureCounts returns per-key counts of each failure type for a run.
func (s *Store) FailureCounts(ctx context.Context, runID string) (map[string]map[verify.FailureType]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT measurement_key, failure_type, COUNT(*)
		FROM verify_records
		WHERE run_id = ? AND failure_type IS NOT NULL
		GROUP BY measurement_key, failure_type`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying failure counts for %s: %w", runID, err)
	}
	defer rows.Close()

	out := make(map[string]map[verify.FailureType]int)
	for rows.Next() {
		var key, ft string
		var n int
		if err := rows.Scan(&key, &ft, &n); err != nil {
			return nil, err
		}
		if out[key] == nil {
			out[key] = make(map[verify.FailureType]int)
		}
		out[key][verify.FailureType(ft)] = n
	}
	return out, rows.Err()
}
