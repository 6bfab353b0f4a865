package runner

import "context"

// Service is a long-running component managed by the Runner.
type Service interface {
	// Name identifies the service in logs and errors.
	Name() string

	// Start brings the service up. It must return once the service is
	// ready (or failed) and respect context cancellation.
	Start(ctx context.Context) error

	// Stop shuts the service down gracefully within the context deadline.
	Stop(ctx context.Context) error
}

// HealthChecker is an optional extension services can implement.
type HealthChecker interface {
	Service

	// HealthCheck returns an error if the service is unhealthy.
	HealthCheck(ctx context.Context) error
}
