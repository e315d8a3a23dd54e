package patient

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format of date_of_birth.
const DateLayout = "2006-01-02"

// InsertRequest is the flat record written to the patients collection.
// Optional fields are pointers and always serialized, so an unset field is
// transmitted as an explicit null.
type InsertRequest struct {
	FullName          string  `db:"full_name" json:"full_name"`
	Gender            string  `db:"gender" json:"gender"`
	DateOfBirth       string  `db:"date_of_birth" json:"date_of_birth"`
	Address           string  `db:"address" json:"address"`
	MobileNumber      string  `db:"mobile_number" json:"mobile_number"`
	Email             *string `db:"email" json:"email"`
	BloodGroup        *string `db:"blood_group" json:"blood_group"`
	Allergies         *string `db:"allergies" json:"allergies"`
	ReferredBy        *string `db:"referred_by" json:"referred_by"`
	EmergencyContact  *string `db:"emergency_contact" json:"emergency_contact"`
	ChronicConditions *string `db:"chronic_conditions" json:"chronic_conditions"`
	InsuranceDetails  *string `db:"insurance_details" json:"insurance_details"`
}

// Record is the created-record view returned by a store after an insert.
type Record struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID string    `db:"patient_id" json:"patient_id"`
	InsertRequest
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Summary is the compact view listed by the search endpoint.
type Summary struct {
	ID           uuid.UUID `json:"id"`
	PatientID    string    `json:"patient_id"`
	FullName     string    `json:"full_name"`
	Gender       string    `json:"gender"`
	DateOfBirth  string    `json:"date_of_birth"`
	MobileNumber string    `json:"mobile_number"`
}

func (r *Record) Summary() Summary {
	return Summary{
		ID:           r.ID,
		PatientID:    r.PatientID,
		FullName:     r.FullName,
		Gender:       r.Gender,
		DateOfBirth:  r.DateOfBirth,
		MobileNumber: r.MobileNumber,
	}
}
