package spec

import (
	"errors"
	"fmt"
)

// ErrorKind separates structural failures (the request cannot be routed)
// from domain failures (the request can be routed but carries bad values).
type ErrorKind string

const (
	KindStructural ErrorKind = "structural"
	KindDomain     ErrorKind = "domain"
)

// Validation error codes.
const (
	CodeMissingCommand        = "MISSING_COMMAND"
	CodeUnknownCommand        = "UNKNOWN_COMMAND"
	CodeMissingLightingSystem = "MISSING_LIGHTING_SYSTEM"
	CodeMissingRequiredField  = "MISSING_REQUIRED_FIELD"
	CodeNonFiniteValue        = "NON_FINITE_VALUE"
	CodeNegativeDimension     = "NEGATIVE_DIMENSION"
	CodeOutOfVocabulary       = "OUT_OF_VOCABULARY"
)

// ValidationError describes why a Specification was rejected.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Structural builds a structural ValidationError.
func Structural(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindStructural, Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Domain builds a domain ValidationError.
func Domain(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindDomain, Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// AsValidationError unwraps err into a *ValidationError when it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsStructural reports whether err is a structural ValidationError.
func IsStructural(err error) bool {
	ve, ok := AsValidationError(err)
	return ok && ve.Kind == KindStructural
}
