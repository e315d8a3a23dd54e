package intake

import (
	"time"

	"github.com/ehr/intake/internal/domain/patient"
)

// BuildInsertRequest maps a validated form to the persistence payload.
// Empty optional fields become nulls.
func BuildInsertRequest(f FormState, now time.Time) patient.InsertRequest {
	return patient.InsertRequest{
		FullName:          f.FullName,
		Gender:            f.Gender,
		DateOfBirth:       CalculateDateOfBirth(f.Age, now),
		Address:           f.Address,
		MobileNumber:      f.MobileNumber,
		Email:             optional(f.Email),
		BloodGroup:        optional(f.BloodGroup),
		Allergies:         optional(f.Allergies),
		ReferredBy:        optional(f.ReferredBy),
		EmergencyContact:  optional(f.EmergencyContact),
		ChronicConditions: optional(f.ChronicConditions),
		InsuranceDetails:  optional(f.InsuranceDetails),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
