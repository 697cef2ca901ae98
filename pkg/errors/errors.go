package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeCorruptState  Code = "CORRUPT_STATE"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a caller should surface an error to the user.
type Metadata struct {
	Retryable      bool
	UserMessage    string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:      false,
		UserMessage:    "Please check the receipt details and try again.",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		Retryable:      false,
		UserMessage:    "That item no longer exists.",
		DetailsAllowed: false,
	},
	CodeConflict: {
		Retryable:      false,
		UserMessage:    "This product is already on the list for this store.",
		DetailsAllowed: false,
	},
	CodeStateConflict: {
		Retryable:      false,
		UserMessage:    "That action is not available right now.",
		DetailsAllowed: true,
	},
	CodeCorruptState: {
		Retryable:      false,
		UserMessage:    "Saved data could not be read.",
		DetailsAllowed: true,
	},
	CodeInternal: {
		Retryable:      true,
		UserMessage:    "Something went wrong.",
		DetailsAllowed: false,
	},
	CodeDependency: {
		Retryable:      true,
		UserMessage:    "Storage is unavailable, please try again.",
		DetailsAllowed: true,
	},
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

// UserMessage returns the dialog text associated with the error code.
func (e *Error) UserMessage() string {
	return MetadataFor(e.Code()).UserMessage
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

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the provided code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
