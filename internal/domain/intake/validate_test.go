package intake

import (
	"errors"
	"testing"
	"time"
)

func validForm() FormState {
	return FormState{
		FullName:     "Asha Rao",
		Gender:       "female",
		Age:          "45",
		Address:      "12 MG Road",
		MobileNumber: "9876543210",
	}
}

func TestValidate_Valid(t *testing.T) {
	res := Validate(validForm())
	if !res.Valid || res.Err != nil {
		t.Errorf("expected valid, got %+v", res)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	for _, name := range RequiredFields {
		t.Run(name, func(t *testing.T) {
			f, _ := validForm().WithField(name, "")
			res := Validate(f)
			if res.Valid || !errors.Is(res.Err, ErrMissingRequiredField) {
				t.Errorf("expected missing required field, got %+v", res)
			}
		})
	}
}

func TestValidate_OptionalFieldsIgnored(t *testing.T) {
	f := validForm()
	f.Email = "not an email"
	f.BloodGroup = "???"
	if res := Validate(f); !res.Valid {
		t.Errorf("expected optional fields not to be validated, got %+v", res)
	}
}

func TestValidate_AgeBounds(t *testing.T) {
	tests := []struct {
		age   string
		valid bool
	}{
		{"0", true},
		{"45", true},
		{"150", true},
		{"151", false},
		{"200", false},
		{"-1", false},
		{"abc", false},
		{"4.5", false},
	}
	for _, tt := range tests {
		f := validForm()
		f.Age = tt.age
		res := Validate(f)
		if res.Valid != tt.valid {
			t.Errorf("age %q: valid=%v, want %v", tt.age, res.Valid, tt.valid)
		}
		if !tt.valid && !errors.Is(res.Err, ErrInvalidAge) {
			t.Errorf("age %q: expected ErrInvalidAge, got %v", tt.age, res.Err)
		}
	}
}

func TestValidate_MissingFieldWinsOverAge(t *testing.T) {
	f := validForm()
	f.Age = "200"
	f.Address = ""
	if res := Validate(f); !errors.Is(res.Err, ErrMissingRequiredField) {
		t.Errorf("expected missing field to be reported first, got %v", res.Err)
	}
}

func TestCalculateDateOfBirth(t *testing.T) {
	now := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		age  string
		want string
	}{
		{"30", "1996-01-01"},
		{"0", "2026-01-01"},
		{"150", "1876-01-01"},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := CalculateDateOfBirth(tt.age, now); got != tt.want {
			t.Errorf("CalculateDateOfBirth(%q) = %q, want %q", tt.age, got, tt.want)
		}
	}
}
