package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second

	// auditPruneInterval is how often expired audit records are removed.
	auditPruneInterval = time.Hour
)
