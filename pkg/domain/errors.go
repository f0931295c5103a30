package domain

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned when a node ID cannot be found in the store.
var ErrNodeNotFound = errors.New("node not found")

// ErrNoChildrenToCascade is returned when a cascade root has no children.
var ErrNoChildrenToCascade = errors.New("no children to cascade")

// ErrGenerationFailed marks provider failures. Use errors.Is to match.
var ErrGenerationFailed = errors.New("generation failed")

// ErrTooManyInterrupts is returned when a node exceeds its question budget.
var ErrTooManyInterrupts = errors.New("too many question interrupts")

// ErrNodeCancelled is returned when the operator declines to answer a question.
var ErrNodeCancelled = errors.New("node cancelled")

// ErrInterrupted is returned when a node paused on a question and no asker
// was available. The accompanying InterruptedError carries the continuation.
var ErrInterrupted = errors.New("node interrupted")

// ErrRunInProgress is returned when a second run is started concurrently.
var ErrRunInProgress = errors.New("run already in progress")

// ErrUnknownPostAction is returned when no handler is registered for an action name.
var ErrUnknownPostAction = errors.New("unknown post action")

// ErrNothingPending is returned when answering or deciding with no open prompt.
var ErrNothingPending = errors.New("nothing pending")

// GenerationFailedError wraps the provider's error for a specific node.
type GenerationFailedError struct {
	NodeID string
	Cause  error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed for node %s: %v", e.NodeID, e.Cause)
}

func (e *GenerationFailedError) Unwrap() error { return e.Cause }

func (e *GenerationFailedError) Is(target error) bool { return target == ErrGenerationFailed }

// InterruptedError carries the continuation of a paused node.
type InterruptedError struct {
	NodeID string
	Resume ResumeState
}

func (e *InterruptedError) Error() string {
	q := ""
	if e.Resume.Interrupt != nil {
		q = e.Resume.Interrupt.Question
	}
	return fmt.Sprintf("node %s interrupted: %s", e.NodeID, q)
}

func (e *InterruptedError) Is(target error) bool { return target == ErrInterrupted }
