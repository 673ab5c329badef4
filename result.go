package asn2srs

import (
	"context"
	"errors"
	"time"

	"paepcke.de/asn2srs/fetch"
)

// Stage of a run.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageBuilding    Stage = "building"
	StageCompiling   Stage = "compiling"
	StageReconciling Stage = "reconciling"
	StagePublishing  Stage = "publishing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Status classifies a finished run.
type Status int

const (
	Success Status = iota
	RetryableFailure
	FatalFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable-failure"
	}
	return "fatal-failure"
}

// Result of one run.
type Result struct {
	Status    Status
	Stage     Stage    // StageDone or StageFailed
	FailedAt  Stage    // stage that failed, empty on success
	Updated   []string // categories whose artifacts changed
	Committed bool
	Duration  time.Duration
	Err       error
}

// StageError ties a failure to its stage and category.
type StageError struct {
	Stage    Stage
	Category string
	Err      error
}

func (e *StageError) Error() string {
	msg := "[" + string(e.Stage) + "]"
	if e.Category != "" {
		msg += " [" + e.Category + "]"
	}
	return msg + " " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// failed builds the result of an aborted run.
func failed(stage Stage, category string, err error) Result {
	return Result{
		Status:   classify(err),
		Stage:    StageFailed,
		FailedAt: stage,
		Err:      &StageError{Stage: stage, Category: category, Err: err},
	}
}

// classify: upstream trouble and cancellation are worth retrying on the next
// scheduled run, everything else needs a human.
func classify(err error) Status {
	var fe *fetch.FetchError
	switch {
	case errors.As(err, &fe):
		return RetryableFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RetryableFailure
	}
	return FatalFailure
}
