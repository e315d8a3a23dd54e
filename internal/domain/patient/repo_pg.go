package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, patient_id, full_name, gender, date_of_birth, address, mobile_number,
	email, blood_group, allergies, referred_by, emergency_contact, chronic_conditions, insurance_details,
	created_at`

// InsertPatient writes one row; patient_id and created_at come from column defaults.
func (r *patientRepoPG) InsertPatient(ctx context.Context, req InsertRequest) (*Record, error) {
	dob, err := time.Parse(DateLayout, req.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("patient insert: invalid date_of_birth %q: %w", req.DateOfBirth, err)
	}

	rec := &Record{ID: uuid.New(), InsertRequest: req}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO patients (
			id, full_name, gender, date_of_birth, address, mobile_number,
			email, blood_group, allergies, referred_by, emergency_contact, chronic_conditions, insurance_details
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING patient_id, created_at`,
		rec.ID, req.FullName, req.Gender, dob, req.Address, req.MobileNumber,
		req.Email, req.BloodGroup, req.Allergies, req.ReferredBy, req.EmergencyContact, req.ChronicConditions, req.InsuranceDetails,
	).Scan(&rec.PatientID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("patient insert: %w", err)
	}
	return rec, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByPatientID(ctx context.Context, patientID string) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, patientID))
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var dob time.Time
	err := row.Scan(
		&rec.ID, &rec.PatientID, &rec.FullName, &rec.Gender, &dob, &rec.Address, &rec.MobileNumber,
		&rec.Email, &rec.BloodGroup, &rec.Allergies, &rec.ReferredBy, &rec.EmergencyContact, &rec.ChronicConditions, &rec.InsuranceDetails,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.DateOfBirth = dob.Format(DateLayout)
	return &rec, nil
}
