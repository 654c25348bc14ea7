package sync

import "time"

// ItemError is one sampled per-item failure from a run.
type ItemError struct {
	ItemID string
	Err    error
}

// Run is the outcome of one orchestrated sync run. Per-item failures
// are tallied here rather than aborting the run, so a Run with a
// nonzero Failed count and a nil run error is a normal outcome.
type Run struct {
	// ID identifies the run in logs and summaries.
	ID string

	// Job names the backlog that was drained.
	Job string

	// Attempted, Succeeded, and Failed count processed items.
	Attempted int
	Succeeded int
	Failed    int

	// Written is the total number of records the processors reported
	// writing to the sink.
	Written int

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration

	// Errors holds up to SampleErrors per-item failures for the
	// summary. The full set is only in the logs.
	Errors []ItemError
}
