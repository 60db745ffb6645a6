package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeMetadataLoad  = "METADATA_LOAD_ERROR"
	ErrCodeLLMClient     = "LLM_CLIENT_ERROR"
	ErrCodeSQLValidation = "SQL_VALIDATION_ERROR"
	ErrCodeSQLExecution  = "SQL_EXECUTION_ERROR"
	ErrCodeGraphConfig   = "GRAPH_CONFIG_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// QueryError is the structured error type for all askdb operations.
type QueryError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Node    string         `json:"node,omitempty"`
	Cause   error          `json:"-"`
}

func (e *QueryError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewError creates a new QueryError.
func NewError(code, message string) *QueryError {
	return &QueryError{Code: code, Message: message}
}

// NewErrorf creates a new QueryError with a formatted message.
func NewErrorf(code, format string, args ...any) *QueryError {
	return &QueryError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the originating node name to the error.
func (e *QueryError) WithNode(node string) *QueryError {
	e.Node = node
	return e
}

// WithCause attaches an underlying cause.
func (e *QueryError) WithCause(err error) *QueryError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *QueryError) WithDetails(details map[string]any) *QueryError {
	e.Details = details
	return e
}

// IsFatal reports whether this error aborts the whole run rather than a
// single branch. Metadata loading is the only shared prerequisite.
func (e *QueryError) IsFatal() bool {
	return e.Code == ErrCodeMetadataLoad
}
