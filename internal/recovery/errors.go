// Package recovery classifies failures and executes degradation strategies.
//
// Each structured failure kind carries its prescribed recovery action as
// part of its identity, so the same error always degrades the same way
// unless a caller overrides it with a registered fallback handler.
package recovery

import (
	"errors"
	"fmt"
)

// Action is the prescribed degradation strategy for a classified failure.
type Action string

const (
	// ActionSkip returns the caller-supplied fallback value.
	ActionSkip Action = "skip"
	// ActionContinue uses the partial result attached to the failure.
	ActionContinue Action = "continue"
	// ActionFallback invokes a registered handler for the operation context.
	ActionFallback Action = "fallback"
	// ActionRetry signals the caller that the operation is retryable.
	ActionRetry Action = "retry"
	// ActionAbort propagates the failure unchanged.
	ActionAbort Action = "abort"
)

// Kind identifies a structured failure category.
type Kind string

const (
	KindModelNotFound      Kind = "model_not_found"
	KindInsufficientMemory Kind = "insufficient_memory"
	KindModelLoadFailure   Kind = "model_load_failure"
	KindChunkingFailure    Kind = "chunking_failure"
	KindInferenceFailure   Kind = "inference_failure"
)

// Failure is a classified error. The zero Action of a Kind is fixed by its
// constructor; Partial optionally carries a usable partial result.
type Failure struct {
	Kind    Kind
	Action  Action
	Partial string
	cause   error
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.cause)
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error { return f.cause }

// ModelNotFound reports a missing model file or endpoint.
func ModelNotFound(cause error) *Failure {
	return &Failure{Kind: KindModelNotFound, Action: ActionFallback, cause: cause}
}

// InsufficientMemory reports a load refused by the memory threshold check.
func InsufficientMemory(cause error) *Failure {
	return &Failure{Kind: KindInsufficientMemory, Action: ActionRetry, cause: cause}
}

// ModelLoadFailure reports a loader error for an otherwise present model.
func ModelLoadFailure(cause error) *Failure {
	return &Failure{Kind: KindModelLoadFailure, Action: ActionFallback, cause: cause}
}

// ChunkingFailure reports an unusable input text. Non-recoverable.
func ChunkingFailure(cause error) *Failure {
	return &Failure{Kind: KindChunkingFailure, Action: ActionAbort, cause: cause}
}

// InferenceFailure reports a failed or timed-out correction call.
func InferenceFailure(cause error) *Failure {
	return &Failure{Kind: KindInferenceFailure, Action: ActionSkip, cause: cause}
}

// WithPartial attaches a partial result to the failure.
func (f *Failure) WithPartial(partial string) *Failure {
	f.Partial = partial
	return f
}

// WithAction overrides the prescribed action. Used at true plugin
// boundaries only; normal call sites rely on the constructor default.
func (f *Failure) WithAction(a Action) *Failure {
	f.Action = a
	return f
}

// AsFailure extracts a classified failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsRetryable reports whether the error carries ActionRetry.
func IsRetryable(err error) bool {
	if f, ok := AsFailure(err); ok {
		return f.Action == ActionRetry
	}
	return false
}
