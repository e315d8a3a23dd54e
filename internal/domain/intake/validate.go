package intake

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/intake/internal/domain/patient"
)

const (
	MinAge = 0
	MaxAge = 150
)

var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidAge           = errors.New("invalid age")
)

// RequiredFields must be non-empty before a submission is attempted.
var RequiredFields = []string{FieldFullName, FieldGender, FieldAge, FieldAddress, FieldMobileNumber}

// ValidationResult is the outcome of Validate. Err is nil when Valid.
type ValidationResult struct {
	Valid bool
	Err   error
}

// Validate applies the submission rules in order; the first failure wins.
func Validate(f FormState) ValidationResult {
	for _, name := range RequiredFields {
		v, _ := f.Get(name)
		if v == "" {
			return ValidationResult{Err: ErrMissingRequiredField}
		}
	}
	if _, ok := parseAge(f.Age); !ok {
		return ValidationResult{Err: ErrInvalidAge}
	}
	return ValidationResult{Valid: true}
}

func parseAge(s string) (int, bool) {
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || age < MinAge || age > MaxAge {
		return 0, false
	}
	return age, true
}

// CalculateDateOfBirth approximates a birth date as January 1st of
// now.Year()-age. Empty or non-numeric ages yield "".
func CalculateDateOfBirth(age string, now time.Time) string {
	n, err := strconv.Atoi(strings.TrimSpace(age))
	if err != nil {
		return ""
	}
	return time.Date(now.Year()-n, time.January, 1, 0, 0, 0, 0, time.UTC).Format(patient.DateLayout)
}
