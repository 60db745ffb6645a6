package engine

import (
	"github.com/rendis/askdb/pkg/schema"
)

// decision is the router's closed set of outcomes after validation.
type decision int

const (
	decisionExecute decision = iota
	decisionRetry
	decisionUnanswerable
)

func (d decision) String() string {
	switch d {
	case decisionExecute:
		return "execute"
	case decisionRetry:
		return "retry"
	case decisionUnanswerable:
		return "unanswerable"
	}
	return "unknown"
}

// route decides the next step after a validation verdict. It is a pure
// function of the state: the orchestrator has already incremented
// RetryCount for an Invalid verdict, so an Invalid state at the bound
// proceeds to execution with the last generated query rather than
// looping forever.
func route(st *State) (decision, error) {
	if st.Validation == nil {
		return 0, schema.NewError(schema.ErrCodeInternal, "routing before validation ran")
	}

	switch st.Validation.Verdict {
	case schema.VerdictValid:
		return decisionExecute, nil
	case schema.VerdictUnanswerable:
		return decisionUnanswerable, nil
	case schema.VerdictInvalid:
		if st.RetryCount < st.MaxIterations {
			return decisionRetry, nil
		}
		return decisionExecute, nil
	}
	return 0, schema.NewErrorf(schema.ErrCodeInternal, "unknown validation verdict: %s", st.Validation.Verdict)
}
