package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// register custom validators
func init() {
	validate.RegisterStructValidation(envelopeStructValidation, Envelope{})
}

// envelopeStructValidation enforces the fields each action requires.
func envelopeStructValidation(sl validator.StructLevel) {
	env, ok := sl.Current().Interface().(Envelope)
	if !ok {
		return
	}
	switch env.Action {
	case ActionAppend:
		if len(env.Values) == 0 {
			sl.ReportError(env.Values, "values", "Values", "required_for_append", "")
		}
	case ActionUpsert:
		if len(env.Record) == 0 {
			sl.ReportError(env.Record, "record", "Record", "required_for_upsert", "")
		}
	case ActionDelete:
		if id, _ := env.Record["id"].(string); id == "" {
			sl.ReportError(env.Record, "record", "Record", "id_required_for_delete", "")
		}
	}
}

// Validate runs struct validation and returns a VALIDATION_ERROR AppError
// listing every failing field.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid input", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return apperrors.New(apperrors.ErrValidation, strings.Join(msgs, "; "))
}
