package forecast

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidModel is returned for an unknown model key.
var ErrInvalidModel = errors.New("invalid model selection")

// InsufficientDataError reports that a model needs more months of history
// than are available.
type InsufficientDataError struct {
	Model    ModelKind
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("insufficient data: at least %d months of expenses are required, got %d", e.Required, e.Got)
	}
	return fmt.Sprintf("insufficient data for %s model: at least %d months of expenses are required, got %d", e.Model, e.Required, e.Got)
}

func insufficient(kind ModelKind, required, got int) error {
	if got >= required {
		return nil
	}
	return &InsufficientDataError{Model: kind, Required: required, Got: got}
}

// FittingFailure wraps the failure of one SARIMAX order combination.
type FittingFailure struct {
	Order string
	Err   error
}

func (e *FittingFailure) Error() string {
	return fmt.Sprintf("fitting %s: %v", e.Order, e.Err)
}

func (e *FittingFailure) Unwrap() error { return e.Err }

// EnsembleAggregateFailure is returned when every ensemble member failed.
type EnsembleAggregateFailure struct {
	Errors map[ModelKind]error
	order  []ModelKind
}

func (e *EnsembleAggregateFailure) Error() string {
	parts := make([]string, 0, len(e.order))
	for _, k := range e.order {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Errors[k]))
	}
	return "all ensemble models failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the member errors to errors.Is and errors.As.
func (e *EnsembleAggregateFailure) Unwrap() []error {
	out := make([]error, 0, len(e.order))
	for _, k := range e.order {
		out = append(out, e.Errors[k])
	}
	return out
}

// IsUserFacing reports whether err is a recoverable condition the caller
// should present to the user rather than treat as an internal failure.
func IsUserFacing(err error) bool {
	var ide *InsufficientDataError
	var agg *EnsembleAggregateFailure
	return errors.As(err, &ide) || errors.As(err, &agg) || errors.Is(err, ErrInvalidModel)
}
