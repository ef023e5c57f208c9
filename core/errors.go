package core

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError reports an invalid request field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a client error: a set of field errors, or a single message when no field
// is to blame (e.g. an expired reset token).
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) > 0 {
		return err.Fields[0].Field + ": " + err.Fields[0].Error
	}
	return "invalid request"
}

func (err *ValidationError) Unwrap() error { return err.Err }

// Message is the response body for err: field name -> error when fields are set, the error
// text otherwise.
func (err *ValidationError) Message() interface{} {
	if len(err.Fields) == 0 {
		return err.Error()
	}
	msgs := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		msgs[f.Field] = f.Error
	}
	return msgs
}

// FieldMessages translates validator errors to field name -> message, field names being the
// JSON ones (see InitValidators).
func FieldMessages(errs validator.ValidationErrors, translator ut.Translator) map[string]string {
	msgs := make(map[string]string, len(errs))
	for _, fe := range errs {
		msgs[fe.Field()] = fe.Translate(translator)
	}
	return msgs
}

type shutdownError struct {
	reason string
}

func (err *shutdownError) Error() string { return err.reason }

// NewShutdownError returns an error that makes the API server shut down gracefully.
func NewShutdownError(reason string) error {
	return &shutdownError{reason: reason}
}

func IsShutdown(err error) bool {
	var sErr *shutdownError
	return errors.As(err, &sErr)
}
