package harness

import "github.com/roach88/sidesync/internal/ir"

// TxnOutcome records how one scenario transaction ended.
type TxnOutcome struct {
	Committed bool   `json:"committed"`
	Error     string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step, transaction, and assertion matched.
	Pass bool `json:"pass"`

	// Transactions holds one outcome per scenario transaction, in order.
	Transactions []TxnOutcome `json:"transactions"`

	// Oplog is the full oplog after the last transaction, in hlc_time order.
	Oplog []ir.OpLogEntry `json:"oplog"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:         true,
		Transactions: []TxnOutcome{},
		Oplog:        []ir.OpLogEntry{},
		Errors:       []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
