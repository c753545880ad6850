package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies failures that can reach the caller of the coordinator.
type Kind string

const (
	KindTranscriptUnavailable   Kind = "TranscriptUnavailable"
	KindPageAgentUnreachable    Kind = "PageAgentUnreachable"
	KindSourceFailed            Kind = "SourceFailed"
	KindSummaryGenerationFailed Kind = "SummaryGenerationFailed"
	KindConfigurationMissing    Kind = "ConfigurationMissing"
	KindInvalidInput            Kind = "InvalidInput"
	KindNotFound                Kind = "NotFound"
	KindInternal                Kind = "Internal"
)

type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"-"`
	Message string `json:"error"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func E(kind Kind, code int, op string, err error, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func InvalidInput(op string, err error, message string) *AppError {
	return E(KindInvalidInput, http.StatusBadRequest, op, err, message)
}

func NotFound(op string, err error, message string) *AppError {
	return E(KindNotFound, http.StatusNotFound, op, err, message)
}

func Internal(op string, err error, message string) *AppError {
	return E(KindInternal, http.StatusInternalServerError, op, err, message)
}

// TranscriptUnavailable is the aggregate failure once every extraction source is exhausted.
func TranscriptUnavailable(op string, err error, message string) *AppError {
	return E(KindTranscriptUnavailable, http.StatusNotFound, op, err, message)
}

func PageAgentUnreachable(op string, err error) *AppError {
	return E(KindPageAgentUnreachable, http.StatusBadGateway, op, err, "page agent unreachable")
}

func SourceFailed(op string, err error, message string) *AppError {
	return E(KindSourceFailed, http.StatusBadGateway, op, err, message)
}

func SummaryGenerationFailed(op string, err error, message string) *AppError {
	return E(KindSummaryGenerationFailed, http.StatusBadGateway, op, err, message)
}

func ConfigurationMissing(op string, message string) *AppError {
	return E(KindConfigurationMissing, http.StatusPreconditionFailed, op, nil, message)
}

// KindOf returns the Kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// PublicMessage returns a message that is safe to show to a user.
func PublicMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "An error occurred while processing your request. Please try again later."
}

// StatusCode returns the HTTP status for err.
func StatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
