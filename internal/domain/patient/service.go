package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// InsertPatient checks the mandatory columns before handing the row to the store.
func (s *Service) InsertPatient(ctx context.Context, req InsertRequest) (*Record, error) {
	if req.FullName == "" || req.Gender == "" || req.Address == "" || req.MobileNumber == "" {
		return nil, fmt.Errorf("full_name, gender, address and mobile_number are required")
	}
	if _, err := time.Parse(DateLayout, req.DateOfBirth); err != nil {
		return nil, fmt.Errorf("date_of_birth must be YYYY-MM-DD, got %q", req.DateOfBirth)
	}

	rec, err := s.repo.InsertPatient(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("id", rec.ID.String()).
		Str("patient_id", rec.PatientID).
		Msg("patient record created")
	return rec, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetPatientByPatientID(ctx context.Context, patientID string) (*Record, error) {
	return s.repo.GetByPatientID(ctx, patientID)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return s.repo.List(ctx, limit, offset)
}
