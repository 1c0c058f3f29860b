// File: internal/audit/log.go
// Description: Append-only audit trail, the ground truth of what the
// automation did. Every attempted action gets exactly one record, written
// (and persisted) before the action is considered complete. The trail is
// flushed to the external evidence sink at plan completion or abort.

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id         TEXT PRIMARY KEY,
    plan_id    TEXT NOT NULL,
    step_index INTEGER NOT NULL,
    outcome    TEXT NOT NULL,
    failure    TEXT NOT NULL,
    record     BLOB NOT NULL,
    at         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_plan ON audit_records(plan_id, step_index);
`

// Log persists audit records to sqlite and keeps the current plan's trail
// in memory for the outcome report.
type Log struct {
	db  *sql.DB
	log *zap.Logger

	mu      sync.Mutex
	records []schemas.AuditRecord
}

// Open opens (creating if needed) the audit database.
func Open(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply audit schema: %w", err)
	}
	return &Log{db: db, log: logger.Named("audit")}, nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append stamps, persists, and retains one record. The insert happens
// before the caller may treat the action as complete; a persistence failure
// is surfaced, not swallowed.
func (l *Log) Append(ctx context.Context, rec schemas.AuditRecord) (schemas.AuditRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("failed to encode audit record: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, plan_id, step_index, outcome, failure, record, at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PlanID, rec.StepIndex, string(rec.Outcome), string(rec.FailureClass), blob, rec.At)
	if err != nil {
		return rec, fmt.Errorf("failed to persist audit record: %w", err)
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	l.log.Info("Audit record written",
		zap.String("plan", rec.PlanID),
		zap.Int("step", rec.StepIndex),
		zap.String("outcome", string(rec.Outcome)),
		zap.String("failure", string(rec.FailureClass)),
	)
	return rec, nil
}

// Records returns a copy of the current plan's trail, in append order.
func (l *Log) Records() []schemas.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]schemas.AuditRecord, len(l.records))
	copy(out, l.records)
	return out
}

// BeginPlan clears the in-memory trail for a new run. Persisted records
// from previous runs are retained in the database.
func (l *Log) BeginPlan() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
}

// Flush delivers the outcome (with the full trail attached) to the
// evidence sink. Sink failures are logged and returned but do not undo the
// persisted records.
func (l *Log) Flush(ctx context.Context, outcome schemas.PlanOutcome, sink schemas.EvidenceSink) error {
	outcome.Records = l.Records()
	if sink == nil {
		return nil
	}
	if err := sink.Flush(ctx, outcome); err != nil {
		l.log.Error("Failed to flush audit trail to evidence sink", zap.Error(err))
		return fmt.Errorf("failed to flush audit trail: %w", err)
	}
	l.log.Info("Audit trail flushed",
		zap.String("plan", outcome.PlanID),
		zap.String("result", string(outcome.Result)),
		zap.Int("records", len(outcome.Records)),
	)
	return nil
}

// PlanRecords loads the persisted trail of an earlier plan.
func (l *Log) PlanRecords(ctx context.Context, planID string) ([]schemas.AuditRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT record FROM audit_records WHERE plan_id = ? ORDER BY step_index, at`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []schemas.AuditRecord
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		var rec schemas.AuditRecord
		if err := json.Unmarshal(blob, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
