// Package scheduler fires report jobs on their calendar and on operator request.
//
// Every run, whether the calendar or an operator started it, goes through
// JobScheduler.TriggerNow, so a job never runs twice at the same time.
// Different jobs may overlap.
package scheduler

import (
	"context"
	"errors"

	"signal_report_backend/models"
)

var (
	// ErrUnknownJob is returned for a job id that was never registered
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobBusy is returned when the job is already running
	ErrJobBusy = errors.New("job is already running")
	// ErrStopped is returned once Stop has been called
	ErrStopped = errors.New("scheduler stopped")
)

// Handler performs one run of a job
type Handler func(ctx context.Context, job models.ScheduledJob) error
