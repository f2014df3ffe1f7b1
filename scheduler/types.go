package scheduler

import (
	"context"
	"time"
)

// Job is a unit of work waiting in the scheduler queue.
type Job struct {
	ID        string
	Name      string
	Perform   func(ctx context.Context) error
	Attempts  int
	NextRetry time.Time
	LastError string
}
