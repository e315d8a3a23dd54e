// Package intake implements the new-patient intake form as a server-side
// session: field edits, attachment staging, validation and the submission
// workflow that persists one patient record.
package intake

import (
	"errors"
	"fmt"
)

// Form field names, as sent by clients.
const (
	FieldFullName          = "fullName"
	FieldGender            = "gender"
	FieldAge               = "age"
	FieldAddress           = "address"
	FieldMobileNumber      = "mobileNumber"
	FieldEmail             = "email"
	FieldBloodGroup        = "bloodGroup"
	FieldAllergies         = "allergies"
	FieldReferredBy        = "referredBy"
	FieldEmergencyContact  = "emergencyContact"
	FieldChronicConditions = "chronicConditions"
	FieldInsuranceDetails  = "insuranceDetails"
)

var ErrUnknownField = errors.New("unknown form field")

var fieldNames = []string{
	FieldFullName, FieldGender, FieldAge, FieldAddress, FieldMobileNumber,
	FieldEmail, FieldBloodGroup, FieldAllergies, FieldReferredBy,
	FieldEmergencyContact, FieldChronicConditions, FieldInsuranceDetails,
}

// FieldNames returns the form's field names in display order.
func FieldNames() []string {
	out := make([]string, len(fieldNames))
	copy(out, fieldNames)
	return out
}

// FormState holds the raw text of every intake field. The zero value is the
// empty form.
type FormState struct {
	FullName          string `json:"fullName"`
	Gender            string `json:"gender"`
	Age               string `json:"age"`
	Address           string `json:"address"`
	MobileNumber      string `json:"mobileNumber"`
	Email             string `json:"email"`
	BloodGroup        string `json:"bloodGroup"`
	Allergies         string `json:"allergies"`
	ReferredBy        string `json:"referredBy"`
	EmergencyContact  string `json:"emergencyContact"`
	ChronicConditions string `json:"chronicConditions"`
	InsuranceDetails  string `json:"insuranceDetails"`
}

func (f *FormState) field(name string) *string {
	switch name {
	case FieldFullName:
		return &f.FullName
	case FieldGender:
		return &f.Gender
	case FieldAge:
		return &f.Age
	case FieldAddress:
		return &f.Address
	case FieldMobileNumber:
		return &f.MobileNumber
	case FieldEmail:
		return &f.Email
	case FieldBloodGroup:
		return &f.BloodGroup
	case FieldAllergies:
		return &f.Allergies
	case FieldReferredBy:
		return &f.ReferredBy
	case FieldEmergencyContact:
		return &f.EmergencyContact
	case FieldChronicConditions:
		return &f.ChronicConditions
	case FieldInsuranceDetails:
		return &f.InsuranceDetails
	}
	return nil
}

// Set replaces one field's value. No validation happens here.
func (f *FormState) Set(name, value string) error {
	p := f.field(name)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	*p = value
	return nil
}

// Get returns one field's value.
func (f FormState) Get(name string) (string, error) {
	p := f.field(name)
	if p == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return *p, nil
}

// WithField returns a copy of f with one field replaced.
func (f FormState) WithField(name, value string) (FormState, error) {
	if err := f.Set(name, value); err != nil {
		return FormState{}, err
	}
	return f, nil
}
