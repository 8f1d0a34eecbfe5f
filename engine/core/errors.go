package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeDocumentLoad  = "DOCUMENT_LOAD_ERROR"
	ErrCodeEmbedding     = "EMBEDDING_ERROR"
	ErrCodeLanguageModel = "LANGUAGE_MODEL_ERROR"
	ErrCodeIndex         = "INDEX_ERROR"
)

// Error carries a machine readable code alongside the wrapped cause.
type Error struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
	err     error
}

// NewError wraps err with a taxonomy code and optional structured details.
func NewError(err error, code string, details map[string]any) *Error {
	msg := code
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Message: msg,
		Code:    code,
		Details: details,
		err:     err,
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" || e.Message == e.Code {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// AsMap renders the error for structured logs and problem payloads.
func (e *Error) AsMap() map[string]any {
	if e == nil {
		return nil
	}
	out := map[string]any{
		"message": e.Message,
		"code":    e.Code,
	}
	if len(e.Details) > 0 {
		out["details"] = CloneMap(e.Details)
	}
	return out
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code string) bool {
	var coreErr *Error
	for err != nil {
		if !errors.As(err, &coreErr) {
			return false
		}
		if coreErr.Code == code {
			return true
		}
		err = coreErr.Unwrap()
	}
	return false
}

// ErrorCode returns the outermost taxonomy code of err, or an empty string.
func ErrorCode(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}
