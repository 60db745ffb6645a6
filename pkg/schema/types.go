package schema

// Row is a single result row: column name → value.
type Row map[string]any

// DefaultMaxIterations bounds the SQL generation/validation retry loop
// when the caller does not specify a limit.
const DefaultMaxIterations = 3

// Request is the contract the orchestration core accepts.
type Request struct {
	InputText     string `json:"input_text"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// Normalize applies defaults and validates the request.
// MaxIterations of zero means "use the default"; negative values are rejected.
func (r *Request) Normalize() error {
	if r.InputText == "" {
		return NewError(ErrCodeValidation, "input_text cannot be empty")
	}
	if r.MaxIterations < 0 {
		return NewErrorf(ErrCodeValidation, "max_iterations must be positive, got %d", r.MaxIterations)
	}
	if r.MaxIterations == 0 {
		r.MaxIterations = DefaultMaxIterations
	}
	return nil
}

// Response is the contract the orchestration core produces.
// Callers always receive a well-formed Response, never an unhandled fault.
type Response struct {
	Success           bool        `json:"success"`
	SQLQuery          string      `json:"sql_query"`
	Data              []Row       `json:"data"`
	Summary           string      `json:"summary"`
	FollowupQuestions []string    `json:"followup_questions"`
	Chart             *Chart      `json:"chart,omitempty"`
	Error             *QueryError `json:"error,omitempty"`
}

// Chart is the artifact produced by the charting branch.
type Chart struct {
	Type   string   `json:"type"`
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

// Series is one named sequence of numeric values in a Chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Verdict is the closed set of SQL validation outcomes.
type Verdict string

const (
	VerdictValid        Verdict = "valid"
	VerdictInvalid      Verdict = "invalid"
	VerdictUnanswerable Verdict = "unanswerable"
)

// Validation is the tagged outcome of the validation node.
// Reason is set for Invalid (what to fix) and Unanswerable (what is missing).
type Validation struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
}
