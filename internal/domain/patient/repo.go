package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Repository interface {
	InsertPatient(ctx context.Context, req InsertRequest) (*Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByPatientID(ctx context.Context, patientID string) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
}
