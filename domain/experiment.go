package domain

import "context"

// Status represents the lifecycle state of one experiment row.
type Status string

// Experiment lifecycle statuses. Rows move created -> running -> done|error;
// done and error are terminal and never reopened automatically.
const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Experiment is one claimed row handed to a worker callback.
type Experiment struct {
	ID     int64
	Params map[string]interface{}
}

// ResultWriter persists result values for one claimed experiment. Partial
// writes are allowed and may be repeated; writing never changes the row's
// status. Writing a value for an undeclared result field fails with a
// ConfigurationError.
type ResultWriter interface {
	Write(ctx context.Context, values map[string]interface{}) error
}

// Callback is the user function executed for one claimed experiment. It
// receives the row's keyfield values, a writer bound to that row, and the
// free-form custom section of the experiment config. A returned error (or a
// panic) marks the row as errored; the run continues with the next row.
type Callback func(ctx context.Context, params map[string]interface{}, results ResultWriter, custom map[string]string) error
