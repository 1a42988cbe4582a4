package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeInvalidFormat          Code = "INVALID_FORMAT"
	CodeMissingRequiredField   Code = "MISSING_REQUIRED_FIELD"
	CodePartialTransferFailure Code = "PARTIAL_TRANSFER_FAILURE"
	CodeStateConflict          Code = "STATE_CONFLICT"
	CodeStorage                Code = "STORAGE_ERROR"
	CodeConfig                 Code = "CONFIG_ERROR"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Metadata describes how callers should treat an error code.
type Metadata struct {
	// RowScoped errors affect a single table row; processing continues with the next row.
	RowScoped bool
	Retryable bool
}

var metadataByCode = map[Code]Metadata{
	CodeInvalidFormat:          {RowScoped: true},
	CodeMissingRequiredField:   {RowScoped: true},
	CodePartialTransferFailure: {},
	CodeStateConflict:          {},
	CodeStorage:                {Retryable: true},
	CodeConfig:                 {},
	CodeInternal:               {},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, CodeInternal otherwise.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code()
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}
