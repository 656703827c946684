package coursegen

import (
	"errors"
	"fmt"

	"stepwise/internal/llm"
)

// Flows, also used as the llm purpose label.
const (
	FlowOutline  = "outline"
	FlowContent  = "step_content"
	FlowQuestion = "question"
)

// GenerationError means the model answered but the answer was empty or did
// not have the expected shape.
type GenerationError struct {
	Flow string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation: %v", e.Flow, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TransportError means the model could not be reached or refused the call.
type TransportError struct {
	Flow string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Flow, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classify turns a provider error into GenerationError or TransportError.
func classify(flow string, err error) error {
	var inv *llm.ErrInvalidResponse
	var trunc *llm.ErrMaxTokensExceeded
	if errors.As(err, &inv) || errors.As(err, &trunc) {
		return &GenerationError{Flow: flow, Err: err}
	}
	return &TransportError{Flow: flow, Err: err}
}
