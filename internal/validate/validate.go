// Package validate checks and normalizes request input before it reaches the
// resolvers. Each request shape has its own function; every violation is
// collected and returned together in a *ValidationError.
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Branches is the closed set accepted for branch and jurisdiction_level.
var Branches = []string{"federal", "state", "local"}

var (
	zip5Pattern    = regexp.MustCompile(`^[0-9]{5}$`)
	zipCodePattern = regexp.MustCompile(`^[0-9]{5}(-[0-9]{4})?$`)
	phonePattern   = regexp.MustCompile(`^\+?1?[\s.-]?\(?[0-9]{3}\)?[\s.-]?[0-9]{3}[\s.-]?[0-9]{4}$`)
)

const dateLayout = "2006-01-02"

// FieldError is one violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

// ValidationError lists every violation found in one request.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string, value any) {
	e.Details = append(e.Details, FieldError{Field: field, Message: message, Value: value})
}

// addStruct appends the failures reported by the validator engine.
func (e *ValidationError) addStruct(err error) {
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		e.add("", err.Error(), nil)
		return
	}
	for _, fe := range verrs {
		e.add(fe.Field(), message(fe), fe.Value())
	}
}

// orNil keeps a typed nil out of the error interface.
func (e *ValidationError) orNil() error {
	if len(e.Details) == 0 {
		return nil
	}
	return e
}

// IsZip5 reports whether s is exactly five ASCII digits.
func IsZip5(s string) bool {
	return zip5Pattern.MatchString(s)
}

var engine = newEngine()

func newEngine() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("zip5", func(fl validator.FieldLevel) bool {
		return zip5Pattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("zipcode", func(fl validator.FieldLevel) bool {
		return zipCodePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil
	})
	return v
}

func message(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "is required"
	case "zip5":
		return "must be exactly 5 digits"
	case "zipcode":
		return "must be a 5-digit ZIP code or ZIP+4"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "len":
		if isString {
			return fmt.Sprintf("must be exactly %s characters", fe.Param())
		}
		return "must have length " + fe.Param()
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if isString {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "alpha":
		return "must contain only letters"
	case "phone":
		return "must be a valid phone number"
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	}
	return "is invalid"
}

func upper(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

func lower(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// parseBool accepts the spellings query strings and loosely typed JSON use.
func parseBool(s string) (bool, bool) {
	switch lower(s) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}
