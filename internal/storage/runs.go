package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
)

// SaveRun persists a completed reconciliation run for later inspection.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *model.ReconciliationRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if err := validateString(run.ID, "run.ID"); err != nil {
		return err
	}

	matchesJSON, err := json.Marshal(run.Matches)
	if err != nil {
		return fmt.Errorf("failed to marshal run matches: %w", err)
	}
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal run steps: %w", err)
	}
	patternsJSON, err := json.Marshal(run.PatternsLearned)
	if err != nil {
		return fmt.Errorf("failed to marshal run patterns: %w", err)
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	var completedAt any
	if !run.CompletedAt.IsZero() {
		completedAt = run.CompletedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, user_id, model, started_at, completed_at, batches,
			processing_time_ms, matches_json, steps_json, patterns_json, stats_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.UserID,
		run.Model,
		run.StartedAt,
		completedAt,
		run.Batches,
		run.ProcessingTime.Milliseconds(),
		string(matchesJSON),
		string(stepsJSON),
		string(patternsJSON),
		string(statsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRuns retrieves a user's run history, most recent first.
func (s *SQLiteStorage) GetRuns(ctx context.Context, userID string, limit int) ([]model.ReconciliationRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, model, started_at, completed_at, batches,
			processing_time_ms, matches_json, steps_json, patterns_json, stats_json
		FROM runs WHERE user_id = ?
		ORDER BY started_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.ReconciliationRun
	for rows.Next() {
		var (
			run          model.ReconciliationRun
			modelName    sql.NullString
			completedAt  sql.NullTime
			processingMs int64
			matchesJSON,
			stepsJSON,
			patternsJSON,
			statsJSON sql.NullString
		)

		if scanErr := rows.Scan(
			&run.ID,
			&run.UserID,
			&modelName,
			&run.StartedAt,
			&completedAt,
			&run.Batches,
			&processingMs,
			&matchesJSON,
			&stepsJSON,
			&patternsJSON,
			&statsJSON,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan run: %w", scanErr)
		}

		run.Model = modelName.String
		run.CompletedAt = completedAt.Time
		run.ProcessingTime = time.Duration(processingMs) * time.Millisecond

		if err := unmarshalRunField(matchesJSON, &run.Matches, run.ID, "matches"); err != nil {
			return nil, err
		}
		if err := unmarshalRunField(stepsJSON, &run.Steps, run.ID, "steps"); err != nil {
			return nil, err
		}
		if err := unmarshalRunField(patternsJSON, &run.PatternsLearned, run.ID, "patterns"); err != nil {
			return nil, err
		}
		if err := unmarshalRunField(statsJSON, &run.Stats, run.ID, "stats"); err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func unmarshalRunField(raw sql.NullString, dest any, runID, field string) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s for run %s: %w", field, runID, err)
	}
	return nil
}
