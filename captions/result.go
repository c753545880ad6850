package captions

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinTextLength is the length a transcript must exceed to count as found.
const MinTextLength = 10

type Status int

const (
	StatusNotFound Status = iota
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// Result is the outcome of a single extraction attempt.
type Result struct {
	Status Status
	Text   string
	Reason string
}

// Success wraps extracted text. Text at or below MinTextLength is downgraded
// to NotFound so that no attempt can succeed with an empty-looking transcript.
func Success(text string) Result {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MinTextLength {
		return NotFound(fmt.Sprintf("transcript too short (%d chars)", utf8.RuneCountInString(text)))
	}
	return Result{Status: StatusSuccess, Text: text}
}

// FromDocument wraps text taken from a caption document that has already been
// validated as a well-formed caption payload; only emptiness is rejected.
func FromDocument(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return NotFound("caption document has no text")
	}
	return Result{Status: StatusSuccess, Text: text}
}

func NotFound(reason string) Result {
	return Result{Status: StatusNotFound, Reason: reason}
}

func Failed(reason string) Result {
	return Result{Status: StatusFailed, Reason: reason}
}

func Failedf(format string, args ...any) Result {
	return Failed(fmt.Sprintf(format, args...))
}

func (r Result) OK() bool {
	return r.Status == StatusSuccess
}
