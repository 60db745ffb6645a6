package engine

import (
	"github.com/google/uuid"

	"github.com/rendis/askdb/pkg/schema"
)

// State is the record threaded through one run of the workflow. It is
// owned exclusively by that run and is append-only: once a field holds
// a terminal value no node erases it, so partial results stay
// inspectable even when a branch fails.
//
// Concurrent branches write disjoint fields. SoftFailures and Err are
// written only by the orchestrator after all branches have joined.
type State struct {
	RunID         string
	InputText     string
	MaxIterations int

	Metadata   string
	SQLQuery   string
	Validation *schema.Validation
	RetryCount int

	Rows      []schema.Row
	Summary   string
	Followups []string
	Chart     *schema.Chart

	Err          *schema.QueryError
	SoftFailures []string

	// unanswerableReason is set during generation when the model
	// declines the question; validation turns it into a verdict.
	unanswerableReason string

	// retryHint carries the last invalidity reason back into the next
	// generation attempt.
	retryHint string
}

func newState(req schema.Request) *State {
	return &State{
		RunID:         uuid.NewString(),
		InputText:     req.InputText,
		MaxIterations: req.MaxIterations,
	}
}
