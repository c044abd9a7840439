// Package errors defines the typed application errors of a generation run.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the failing concern.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "1000"
	CodeInvalidParam    ErrorCode = "1001"
	CodeConfigInvalid   ErrorCode = "1002"
	CodeOutlineInvalid  ErrorCode = "1003"
	CodeFileNotFound    ErrorCode = "3004"
	CodeLLMCallFailed   ErrorCode = "4005"
	CodeEmbeddingFailed ErrorCode = "4006"
	CodeRetrievalFailed ErrorCode = "4003"
	CodeWebSearchFailed ErrorCode = "4007"
	CodeBudgetExceeded  ErrorCode = "4008"
	CodeRevisionsLimit  ErrorCode = "4009"
	CodeRenderFailed    ErrorCode = "4010"
	CodeInvariant       ErrorCode = "4500"
	CodeReconcile       ErrorCode = "4501"
	CodeDatabaseError   ErrorCode = "5001"
	CodeCacheError      ErrorCode = "5002"
)

// Kind tells the orchestrator how to react to an error.
type Kind int

const (
	// KindFatal aborts the run.
	KindFatal Kind = iota
	// KindDegraded is folded into the output as inline text; the run continues.
	KindDegraded
	// KindInvariant is a defect: state that must never occur.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindDegraded:
		return "degraded"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// AppError is an error with a code and a handling kind.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Kind    Kind      `json:"-"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError with the same code, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Err == nil && t.Detail == ""
}

// WithDetail returns a copy with detail attached.
func (e *AppError) WithDetail(detail string) *AppError {
	c := *e
	c.Detail = detail
	return &c
}

// New creates an error of the given code and kind.
func New(code ErrorCode, kind Kind, message string) *AppError {
	return &AppError{Code: code, Kind: kind, Message: message}
}

// Wrap attaches a code and kind to err.
func Wrap(err error, code ErrorCode, kind Kind, message string) *AppError {
	return &AppError{Code: code, Kind: kind, Message: message, Err: err}
}

// Invariantf builds a defect error.
func Invariantf(format string, args ...any) *AppError {
	return &AppError{Code: CodeInvariant, Kind: KindInvariant, Message: fmt.Sprintf(format, args...)}
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the handling kind of err. Untyped errors are fatal.
func KindOf(err error) Kind {
	if ae, ok := AsAppError(err); ok {
		return ae.Kind
	}
	return KindFatal
}

// IsDegraded reports whether err may be folded into output and skipped.
func IsDegraded(err error) bool {
	return err != nil && KindOf(err) == KindDegraded
}

// IsInvariant reports whether err signals a defect.
func IsInvariant(err error) bool {
	return err != nil && KindOf(err) == KindInvariant
}

// Sentinels.
var (
	ErrLLMCallFailed      = New(CodeLLMCallFailed, KindFatal, "llm call failed")
	ErrEmbeddingFailed    = New(CodeEmbeddingFailed, KindDegraded, "embedding failed")
	ErrRetrievalFailed    = New(CodeRetrievalFailed, KindDegraded, "retrieval failed")
	ErrWebSearchFailed    = New(CodeWebSearchFailed, KindDegraded, "web search failed")
	ErrBudgetExceeded     = New(CodeBudgetExceeded, KindFatal, "budget exceeded")
	ErrRevisionsExhausted = New(CodeRevisionsLimit, KindFatal, "revision limit reached")
	ErrRenderFailed       = New(CodeRenderFailed, KindDegraded, "document render failed")
	ErrInvariant          = New(CodeInvariant, KindInvariant, "invariant violated")
	ErrOutlineInvalid     = New(CodeOutlineInvalid, KindFatal, "invalid outline")
	ErrConfigInvalid      = New(CodeConfigInvalid, KindFatal, "invalid configuration")
)
