package scheduler

import "context"

// Job is a unit of work run by the worker pool.
type Job interface {
	// Execute must respect ctx cancellation; the pool bounds it with the job timeout.
	Execute(ctx context.Context) error

	// TenantID identifies whose data the job touches, for logs and spans.
	TenantID() string

	Description() string
}
