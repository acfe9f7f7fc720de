package harness

// Status classifies a case outcome.
type Status string

// Outcome statuses.
const (
	StatusPass     Status = "pass"
	StatusMismatch Status = "mismatch"
	StatusError    Status = "error"
)

// Outcome is the record of one case execution.
type Outcome struct {
	Index    int    `json:"index"`
	Name     string `json:"name,omitempty"`
	Expr     string `json:"expr"`
	Input    int64  `json:"input"` // accumulator before the case
	Status   Status `json:"status"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"` // zero for StatusError
	Err      string `json:"error,omitempty"`
}

// Passed reports whether the outcome is a pass.
func (o Outcome) Passed() bool { return o.Status == StatusPass }

// RunResult is the outcome of running one suite.
type RunResult struct {
	Suite string `json:"suite"`

	// Pass is true when every case passed and the final accumulator, if
	// declared, matched.
	Pass bool `json:"pass"`

	// Outcomes has one entry per case, in suite order.
	Outcomes []Outcome `json:"outcomes"`

	Initial       int64  `json:"initial"`
	Final         int64  `json:"final"`
	ExpectedFinal *int64 `json:"expected_final,omitempty"`

	Passed     int `json:"passed"`
	Mismatched int `json:"mismatched"`
	Errored    int `json:"errored"`

	// Errors holds run-level failures that are not tied to a case.
	Errors []string `json:"errors,omitempty"`
}

// NewRunResult creates a passing result for s with no outcomes.
func NewRunResult(s *Suite) *RunResult {
	r := &RunResult{
		Suite:    s.Name(),
		Pass:     true,
		Outcomes: make([]Outcome, 0, s.Len()),
		Initial:  s.Initial(),
		Final:    s.Initial(),
	}
	if v, ok := s.Final(); ok {
		r.ExpectedFinal = &v
	}
	return r
}

// AddOutcome appends o and updates the counts.
func (r *RunResult) AddOutcome(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusPass:
		r.Passed++
	case StatusMismatch:
		r.Mismatched++
		r.Pass = false
	default:
		r.Errored++
		r.Pass = false
	}
}

// AddError records a run-level failure and marks the result as failed.
func (r *RunResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Total returns the number of outcomes.
func (r *RunResult) Total() int { return len(r.Outcomes) }

// Failed returns the number of outcomes that did not pass.
func (r *RunResult) Failed() int { return r.Mismatched + r.Errored }
