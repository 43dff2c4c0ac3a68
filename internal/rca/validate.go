package rca

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/goerr/v2"

	"github.com/joescharf/eightd/internal/models"
)

// inputValidate checks the create payloads. Field names in errors are the
// JSON names.
var inputValidate = newValidator()

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

// requiredMessages are the client messages for missing or non-positive fields.
var requiredMessages = map[string]string{
	"title":              "Title is required",
	"responsible_person": "Responsible person is required",
	"description":        "Description is required",
	"problem_id":         "Valid problem ID is required",
}

var fieldLabels = map[string]string{
	"title":              "Title",
	"responsible_person": "Responsible person",
	"team":               "Team",
	"deadline":           "Deadline",
}

func validateInput(in any) error {
	err := inputValidate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return goerr.Wrap(err, "failed to validate input")
	}
	return validationErr("%s", fieldMessage(verrs[0]))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	label := fieldLabels[field]
	if label == "" {
		label = field
	}
	switch fe.Tag() {
	case "required", "gt":
		if msg, ok := requiredMessages[field]; ok {
			return msg
		}
		return label + " is required"
	case "max":
		return label + " must be at most " + fe.Param() + " characters"
	case "datetime":
		return label + " must be a date in YYYY-MM-DD format"
	}
	return label + " is invalid"
}

func validDate(s string) bool {
	_, err := time.Parse(models.DateLayout, s)
	return err == nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
