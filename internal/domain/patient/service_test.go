package patient

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type mockRepo struct {
	records []*Record
	seq     int
	failErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{}
}

func (m *mockRepo) InsertPatient(_ context.Context, req InsertRequest) (*Record, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	m.seq++
	rec := &Record{
		ID:            uuid.New(),
		PatientID:     fmt.Sprintf("P%06d", m.seq),
		InsertRequest: req,
		CreatedAt:     time.Now(),
	}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) GetByPatientID(_ context.Context, patientID string) (*Record, error) {
	for _, r := range m.records {
		if r.PatientID == patientID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Record, int, error) {
	total := len(m.records)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return m.records[offset:end], total, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.New(io.Discard)), repo
}

func validRequest() InsertRequest {
	return InsertRequest{
		FullName:     "Asha Rao",
		Gender:       "female",
		DateOfBirth:  "1981-01-01",
		Address:      "12 MG Road",
		MobileNumber: "9876543210",
	}
}

func TestService_InsertPatient(t *testing.T) {
	svc, repo := newTestService()

	rec, err := svc.InsertPatient(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PatientID != "P000001" {
		t.Errorf("expected P000001, got %s", rec.PatientID)
	}
	if len(repo.records) != 1 {
		t.Errorf("expected 1 stored record, got %d", len(repo.records))
	}
}

func TestService_InsertPatient_MissingMandatory(t *testing.T) {
	svc, repo := newTestService()

	req := validRequest()
	req.MobileNumber = ""
	if _, err := svc.InsertPatient(context.Background(), req); err == nil {
		t.Fatal("expected error for missing mobile_number")
	}
	if len(repo.records) != 0 {
		t.Error("expected nothing to be stored")
	}
}

func TestService_InsertPatient_BadDateOfBirth(t *testing.T) {
	svc, _ := newTestService()

	req := validRequest()
	req.DateOfBirth = "01/01/1981"
	if _, err := svc.InsertPatient(context.Background(), req); err == nil {
		t.Fatal("expected error for malformed date_of_birth")
	}
}

func TestService_InsertPatient_RepoError(t *testing.T) {
	svc, repo := newTestService()
	repo.failErr = fmt.Errorf("connection refused")

	if _, err := svc.InsertPatient(context.Background(), validRequest()); err == nil {
		t.Fatal("expected repository error to propagate")
	}
}

func TestService_GetPatientByPatientID(t *testing.T) {
	svc, _ := newTestService()
	created, _ := svc.InsertPatient(context.Background(), validRequest())

	got, err := svc.GetPatientByPatientID(context.Background(), created.PatientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected %s, got %s", created.ID, got.ID)
	}

	if _, err := svc.GetPatientByPatientID(context.Background(), "P999999"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
