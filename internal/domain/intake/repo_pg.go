package intake

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, channel, status, raw_text, first_name, last_name, date_of_birth,
	confidence, source_id, patient_id, chain_run_id, chain_view_url, error, created_at`

func (r *recordRepoPG) scanRow(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Channel, &rec.Status, &rec.RawText,
		&rec.FirstName, &rec.LastName, &rec.DateOfBirth,
		&rec.Confidence, &rec.SourceID, &rec.PatientID,
		&rec.ChainRunID, &rec.ChainViewURL, &rec.Error, &rec.CreatedAt)
	return &rec, err
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO intake_records (id, channel, status, raw_text, first_name, last_name, date_of_birth,
			confidence, source_id, patient_id, chain_run_id, chain_view_url, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID, rec.Channel, rec.Status, rec.RawText, rec.FirstName, rec.LastName, rec.DateOfBirth,
		rec.Confidence, rec.SourceID, rec.PatientID, rec.ChainRunID, rec.ChainViewURL, rec.Error)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM intake_records WHERE id = $1`, id))
}

func (r *recordRepoPG) Update(ctx context.Context, rec *Record) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE intake_records SET channel=$2, status=$3, raw_text=$4, first_name=$5, last_name=$6,
			date_of_birth=$7, confidence=$8, source_id=$9, patient_id=$10,
			chain_run_id=$11, chain_view_url=$12, error=$13
		WHERE id = $1`,
		rec.ID, rec.Channel, rec.Status, rec.RawText, rec.FirstName, rec.LastName,
		rec.DateOfBirth, rec.Confidence, rec.SourceID, rec.PatientID,
		rec.ChainRunID, rec.ChainViewURL, rec.Error)
	return err
}

func (r *recordRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE intake_records SET status = $2, error = $3 WHERE id = $1`, id, status, errMsg)
	return err
}

func (r *recordRepoPG) UpdateChainResult(ctx context.Context, id uuid.UUID, runID, viewURL string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE intake_records SET chain_run_id = $2, chain_view_url = $3 WHERE id = $1`, id, runID, viewURL)
	return err
}

func (r *recordRepoPG) List(ctx context.Context, limit, offset int, channel, status string) ([]*Record, int, error) {
	query := `SELECT ` + recordCols + ` FROM intake_records WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM intake_records WHERE 1=1`
	var args []interface{}
	idx := 1

	if channel != "" {
		query += fmt.Sprintf(` AND channel = $%d`, idx)
		countQuery += fmt.Sprintf(` AND channel = $%d`, idx)
		args = append(args, channel)
		idx++
	}
	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func (r *recordRepoPG) ListBySourceID(ctx context.Context, sourceID string) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM intake_records WHERE source_id = $1
		ORDER BY created_at DESC`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, nil
}
