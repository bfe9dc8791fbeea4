package harness

import "github.com/roach88/critq/internal/querymodel"

// Result is the outcome of running one scenario.
type Result struct {
	Name string `json:"name"`

	// Pass is true when every expectation matched.
	Pass bool `json:"pass"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// Model is the compiled statement; nil when compilation failed.
	Model *querymodel.Model `json:"-"`

	// Outputs maps a dialect name to its rendering.
	Outputs map[string]*Output `json:"outputs,omitempty"`
}

// NewResult creates a passing result.
func NewResult(name string) *Result {
	return &Result{Name: name, Pass: true, Outputs: make(map[string]*Output)}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
