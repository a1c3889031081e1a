package translator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

type ErrorType int

const (
	// ErrTranslation is a recoverable per-batch failure.
	ErrTranslation ErrorType = iota
	// ErrTranslationImpossible ends the run: quota exhausted or the client gave up.
	ErrTranslationImpossible
	// ErrTruncated is a response cut short by the generation limit twice in a row.
	ErrTruncated
	// ErrValidation means the batch still failed validation after any retry.
	ErrValidation
	// ErrAborted is a user cancellation.
	ErrAborted
	// ErrNoResponse means the client returned nothing usable.
	ErrNoResponse
)

func (t ErrorType) String() string {
	switch t {
	case ErrTranslation:
		return "Translation"
	case ErrTranslationImpossible:
		return "TranslationImpossible"
	case ErrTruncated:
		return "Truncated"
	case ErrValidation:
		return "Validation"
	case ErrAborted:
		return "Aborted"
	case ErrNoResponse:
		return "NoResponse"
	default:
		return "Unknown"
	}
}

type TranslationError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *TranslationError {
	return &TranslationError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *TranslationError {
	return &TranslationError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func WrapError(err error, errorType ErrorType, message string) *TranslationError {
	return NewErrorWithCause(errorType, message, err)
}

func (e *TranslationError) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Type, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

func (e *TranslationError) WithContext(key string, value any) *TranslationError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func IsErrorType(err error, errorType ErrorType) bool {
	var terr *TranslationError
	if errors.As(err, &terr) {
		return terr.Type == errorType
	}
	return false
}

// IsFatal reports whether err must end the whole run.
func IsFatal(err error) bool {
	var terr *TranslationError
	if !errors.As(err, &terr) {
		return false
	}
	switch terr.Type {
	case ErrTranslationImpossible, ErrTruncated, ErrAborted:
		return true
	default:
		return false
	}
}

// IsAborted separates a clean cancel from a failure.
func IsAborted(err error) bool {
	return IsErrorType(err, ErrAborted)
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *TranslationError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice. It returns false for errors outside the taxonomy.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var terr *TranslationError
	if !errors.As(err, &terr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	if terr.Type == ErrAborted {
		log.Info("Translation aborted")
		return true
	}

	log.Error("Error Detail: %v\n advice: %s", err, h.GetAdvice(terr))
	return true
}

func (h *DefaultErrorHandler) GetAdvice(err *TranslationError) string {
	switch err.Type {
	case ErrTranslationImpossible:
		return "Check the API key, account quota and provider status before resuming"
	case ErrTruncated:
		return "The response hit the generation limit; lower the max batch size or raise LLM_MAX_TOKENS"
	case ErrValidation:
		return "Some lines failed validation; rerun with resume to retry only the failed batches"
	case ErrNoResponse:
		return "The provider returned an empty response; try again or switch model"
	case ErrAborted:
		return "Translation was cancelled; rerun with resume to continue"
	default:
		return "Review the error details and rerun with resume to continue"
	}
}
