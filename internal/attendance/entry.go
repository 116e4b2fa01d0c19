package attendance

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Gender is the optional self-reported gender of an attendee.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Entry is one check-in record. ID and Timestamp are assigned by the remote store.
type Entry struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	OtherNames string    `json:"other_names,omitempty"`
	Phone      string    `json:"phone"`
	Gender     Gender    `json:"gender,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// FullName joins first, other and last names the way the search filter sees them.
func (e Entry) FullName() string {
	return e.FirstName + " " + e.OtherNames + " " + e.LastName
}

var (
	// ErrInvalid wraps every submission validation failure.
	ErrInvalid = errors.New("invalid submission")
	// ErrDuplicate is returned by stores when the phone number is already registered.
	ErrDuplicate = errors.New("phone already registered")
	// ErrForbidden is returned when the admin key does not match.
	ErrForbidden = errors.New("admin key mismatch")
)

// Submission is the attendee-provided part of an entry.
type Submission struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	OtherNames string `json:"other_names"`
	Phone      string `json:"phone" validate:"required"`
	Gender     Gender `json:"gender" validate:"omitempty,oneof=Male Female"`
}

// Normalize trims surrounding whitespace from every field.
func (s Submission) Normalize() Submission {
	return Submission{
		FirstName:  strings.TrimSpace(s.FirstName),
		LastName:   strings.TrimSpace(s.LastName),
		OtherNames: strings.TrimSpace(s.OtherNames),
		Phone:      strings.TrimSpace(s.Phone),
		Gender:     Gender(strings.TrimSpace(string(s.Gender))),
	}
}

// FieldError describes one rejected submission field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every rejected field of a submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "invalid submission: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks required fields, the minimum phone length and the gender value.
// It returns nil or a *ValidationError.
func (s Submission) Validate(minPhoneLength int, genderRequired bool) error {
	var fields []FieldError
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Reason: reason(fe.Tag())})
		}
	}
	if s.Phone != "" && minPhoneLength > 0 {
		if err := validate.Var(s.Phone, fmt.Sprintf("min=%d", minPhoneLength)); err != nil {
			fields = append(fields, FieldError{Field: "phone", Reason: fmt.Sprintf("must be at least %d characters", minPhoneLength)})
		}
	}
	if genderRequired && s.Gender == "" {
		fields = append(fields, FieldError{Field: "gender", Reason: "is required"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func reason(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "oneof":
		return "must be Male or Female"
	default:
		return "is invalid"
	}
}
