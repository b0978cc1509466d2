package patients

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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, source_id, first_name, last_name, date_of_birth, status,
	phone, email, address_line1, city, state, postal_code,
	insurance_plan, insurance_member_id, insurance_group,
	prescriber_name, prescriber_npi,
	created_at, updated_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.SourceID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Status,
		&p.Phone, &p.Email, &p.AddressLine1, &p.City, &p.State, &p.PostalCode,
		&p.InsurancePlan, &p.InsuranceMemberID, &p.InsuranceGroup,
		&p.PrescriberName, &p.PrescriberNPI,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, source_id, first_name, last_name, date_of_birth, status,
			phone, email, address_line1, city, state, postal_code,
			insurance_plan, insurance_member_id, insurance_group,
			prescriber_name, prescriber_npi)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.SourceID, p.FirstName, p.LastName, p.DateOfBirth, p.Status,
		p.Phone, p.Email, p.AddressLine1, p.City, p.State, p.PostalCode,
		p.InsurancePlan, p.InsuranceMemberID, p.InsuranceGroup,
		p.PrescriberName, p.PrescriberNPI)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetBySourceID(ctx context.Context, sourceID string) (*Patient, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE source_id = $1`, sourceID))
}

// Upsert inserts the patient or, when the source_id already exists, fills in
// attributes the stored row is missing. Identity columns and status never
// change on conflict: the same key means the same person, and enrollment
// state is owned by the status endpoint. Reports whether a new row was
// created via the xmax = 0 trick.
func (r *patientRepoPG) Upsert(ctx context.Context, p *Patient) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, source_id, first_name, last_name, date_of_birth, status,
			phone, email, address_line1, city, state, postal_code,
			insurance_plan, insurance_member_id, insurance_group,
			prescriber_name, prescriber_npi)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (source_id) DO UPDATE SET
			phone               = COALESCE(patients.phone, EXCLUDED.phone),
			email               = COALESCE(patients.email, EXCLUDED.email),
			address_line1       = COALESCE(patients.address_line1, EXCLUDED.address_line1),
			city                = COALESCE(patients.city, EXCLUDED.city),
			state               = COALESCE(patients.state, EXCLUDED.state),
			postal_code         = COALESCE(patients.postal_code, EXCLUDED.postal_code),
			insurance_plan      = COALESCE(patients.insurance_plan, EXCLUDED.insurance_plan),
			insurance_member_id = COALESCE(patients.insurance_member_id, EXCLUDED.insurance_member_id),
			insurance_group     = COALESCE(patients.insurance_group, EXCLUDED.insurance_group),
			prescriber_name     = COALESCE(patients.prescriber_name, EXCLUDED.prescriber_name),
			prescriber_npi      = COALESCE(patients.prescriber_npi, EXCLUDED.prescriber_npi),
			updated_at          = NOW()
		RETURNING id, (xmax = 0) AS inserted`,
		p.ID, p.SourceID, p.FirstName, p.LastName, p.DateOfBirth, p.Status,
		p.Phone, p.Email, p.AddressLine1, p.City, p.State, p.PostalCode,
		p.InsurancePlan, p.InsuranceMemberID, p.InsuranceGroup,
		p.PrescriberName, p.PrescriberNPI)

	var created bool
	if err := row.Scan(&p.ID, &created); err != nil {
		return false, err
	}
	return created, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET source_id=$2, first_name=$3, last_name=$4, date_of_birth=$5, status=$6,
			phone=$7, email=$8, address_line1=$9, city=$10, state=$11, postal_code=$12,
			insurance_plan=$13, insurance_member_id=$14, insurance_group=$15,
			prescriber_name=$16, prescriber_npi=$17,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.SourceID, p.FirstName, p.LastName, p.DateOfBirth, p.Status,
		p.Phone, p.Email, p.AddressLine1, p.City, p.State, p.PostalCode,
		p.InsurancePlan, p.InsuranceMemberID, p.InsuranceGroup,
		p.PrescriberName, p.PrescriberNPI)
	return err
}

func (r *patientRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int, status string) ([]*Patient, int, error) {
	query := `SELECT ` + patientCols + ` FROM patients WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM patients WHERE 1=1`
	var args []interface{}
	idx := 1

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
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

// Search matches a case-insensitive substring against either name column or
// the source ID.
func (r *patientRepoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + query + "%"
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patients
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR source_id ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR source_id ILIKE $1
		ORDER BY last_name, first_name LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *patientRepoPG) SearchByName(ctx context.Context, firstName, lastName string) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE LOWER(first_name) = LOWER($1) AND LOWER(last_name) = LOWER($2)
		ORDER BY created_at DESC`, firstName, lastName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total)
	return total, err
}
