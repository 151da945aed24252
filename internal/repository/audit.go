// Package repository persists the append-only audit trail (one AuditRecord
// per pipeline stage per run) to Postgres, grounded on the teacher's
// internal/repository.VariantRepository: a pgxpool.Pool plus a logrus
// logger, parameterized SQL, structured error logging on failure.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/genomax/protocol-engine/internal/domain"
)

// ErrNotFound is returned when a lookup finds no matching audit record.
var ErrNotFound = errors.New("audit record not found")

// AuditRepository persists and retrieves pipeline audit records. Writes are
// append-only: a run_id/stage pair is never updated once inserted.
type AuditRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAuditRepository builds an AuditRepository.
func NewAuditRepository(db *pgxpool.Pool, logger *logrus.Logger) *AuditRepository {
	return &AuditRepository{db: db, log: logger}
}

// Create inserts one audit record. Called after the response is prepared,
// as a fire-and-forget task: an audit-write failure must never fail the
// request it describes.
func (r *AuditRepository) Create(ctx context.Context, record domain.AuditRecord) error {
	counts, err := json.Marshal(record.Counts)
	if err != nil {
		return fmt.Errorf("marshaling audit counts: %w", err)
	}

	query := `
		INSERT INTO audit_records (
			run_id, stage, input_hash, output_hash, counts, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`

	_, err = r.db.Exec(ctx, query,
		record.RunID,
		record.Stage,
		record.InputHash,
		record.OutputHash,
		counts,
		record.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"run_id": record.RunID, "stage": record.Stage, "error": err,
		}).Error("failed to write audit record")
		return fmt.Errorf("creating audit record: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id": record.RunID, "stage": record.Stage,
	}).Debug("audit record written")

	return nil
}

// GetByRunID retrieves every audit record for a run, ordered by created_at;
// records with equal created_at come back in no defined order.
func (r *AuditRepository) GetByRunID(ctx context.Context, runID string) ([]domain.AuditRecord, error) {
	query := `
		SELECT run_id, stage, input_hash, output_hash, counts, created_at
		FROM audit_records
		WHERE run_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var counts []byte
		if err := rows.Scan(&rec.RunID, &rec.Stage, &rec.InputHash, &rec.OutputHash, &counts, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		if err := json.Unmarshal(counts, &rec.Counts); err != nil {
			return nil, fmt.Errorf("unmarshaling audit counts: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// GetLatestByRunID retrieves the most recent audit record for a run.
func (r *AuditRepository) GetLatestByRunID(ctx context.Context, runID string) (domain.AuditRecord, error) {
	query := `
		SELECT run_id, stage, input_hash, output_hash, counts, created_at
		FROM audit_records
		WHERE run_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var rec domain.AuditRecord
	var counts []byte
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&rec.RunID, &rec.Stage, &rec.InputHash, &rec.OutputHash, &counts, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuditRecord{}, ErrNotFound
		}
		return domain.AuditRecord{}, fmt.Errorf("getting latest audit record: %w", err)
	}
	if err := json.Unmarshal(counts, &rec.Counts); err != nil {
		return domain.AuditRecord{}, fmt.Errorf("unmarshaling audit counts: %w", err)
	}
	return rec, nil
}
