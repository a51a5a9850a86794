package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrCorruptArtifact  = errors.New("corrupt artifact")
	ErrNotFound         = errors.New("not found")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorKind is the stable tag a transport uses to pick a message template.
type ErrorKind string

const (
	KindMissingField        ErrorKind = "missing_field"
	KindDuplicateField      ErrorKind = "duplicate_field"
	KindInvalidNumericValue ErrorKind = "invalid_numeric_value"
	KindOutOfRange          ErrorKind = "out_of_range"
	KindUnknownCategory     ErrorKind = "unknown_category"
	KindInvalidCode         ErrorKind = "invalid_code"
	KindModelUnavailable    ErrorKind = "model_unavailable"
)

// KindedError is implemented by every structured error produced by the core.
type KindedError interface {
	error
	Kind() ErrorKind
}

// MissingFieldError names every absent request field, in declared feature order.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldError) Kind() ErrorKind { return KindMissingField }

func (e *MissingFieldError) Is(target error) bool { return target == ErrInvalidInput }

// DuplicateFieldError reports a request field that appears more than once in
// one record.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("field %s is given more than once", e.Field)
}

func (e *DuplicateFieldError) Kind() ErrorKind { return KindDuplicateField }

func (e *DuplicateFieldError) Is(target error) bool { return target == ErrInvalidInput }

type InvalidNumericValueError struct {
	Field    string
	RawValue string
}

func (e *InvalidNumericValueError) Error() string {
	return fmt.Sprintf("%s must be a number, got %q", e.Field, e.RawValue)
}

func (e *InvalidNumericValueError) Kind() ErrorKind { return KindInvalidNumericValue }

func (e *InvalidNumericValueError) Is(target error) bool { return target == ErrInvalidInput }

type OutOfRangeError struct {
	Field string
	Value float64
	Lo    float64
	Hi    float64
	Unit  string
}

func (e *OutOfRangeError) Error() string {
	rng := formatFloat(e.Lo) + "-" + formatFloat(e.Hi)
	if e.Unit != "" {
		rng += " " + e.Unit
	}
	return fmt.Sprintf("%s must be between %s, got %s", e.Field, rng, formatFloat(e.Value))
}

func (e *OutOfRangeError) Kind() ErrorKind { return KindOutOfRange }

func (e *OutOfRangeError) Is(target error) bool { return target == ErrInvalidInput }

// UnknownCategoryError carries the complete allowed set so callers can render it verbatim.
type UnknownCategoryError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("invalid %s %q, must be one of: %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

func (e *UnknownCategoryError) Kind() ErrorKind { return KindUnknownCategory }

func (e *UnknownCategoryError) Is(target error) bool { return target == ErrInvalidInput }

// InvalidCodeError means a code has no value in the codec. It indicates codec or
// manifest corruption, never a client mistake.
type InvalidCodeError struct {
	Field string
	Code  int
	Size  int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code %d for %s: codec has %d values", e.Code, e.Field, e.Size)
}

func (e *InvalidCodeError) Kind() ErrorKind { return KindInvalidCode }

func (e *InvalidCodeError) Is(target error) bool { return target == ErrCorruptArtifact }

type ModelUnavailableError struct {
	Reason string
	Err    error
}

func (e *ModelUnavailableError) Error() string {
	msg := "model unavailable"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Kind() ErrorKind { return KindModelUnavailable }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// KindedErrors flattens joined errors into the structured errors they contain.
func KindedErrors(err error) []KindedError {
	switch e := err.(type) {
	case nil:
		return nil
	case KindedError:
		return []KindedError{e}
	case interface{ Unwrap() []error }:
		var out []KindedError
		for _, inner := range e.Unwrap() {
			out = append(out, KindedErrors(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		return KindedErrors(e.Unwrap())
	default:
		return nil
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ErrorText renders err for clients: the structured errors it contains joined
// with "; ", or the plain message when it carries none.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	kinded := KindedErrors(err)
	if len(kinded) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(kinded))
	for _, k := range kinded {
		msgs = append(msgs, k.Error())
	}
	return strings.Join(msgs, "; ")
}
