package tasks

import (
	"context"
	"time"
)

// TaskFunc is the unit of work.
type TaskFunc func(ctx context.Context) error

type TaskStatus struct {
	Name       string    `json:"name,omitempty"`
	Running    bool      `json:"running,omitempty"`
	LastRun    time.Time `json:"last_run"`
	LastResult string    `json:"last_result,omitempty"`
	NextRun    time.Time `json:"next_run"`
}
