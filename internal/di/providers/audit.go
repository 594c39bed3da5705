package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/libris/libris-server/internal/audit"
	"github.com/libris/libris-server/internal/config"
	"github.com/libris/libris-server/internal/logger"
)

// AuditLogHandle wraps the audit log with shutdown capability.
// Log is nil when auditing is disabled.
type AuditLogHandle struct {
	*audit.Log
}

// Shutdown implements do.Shutdownable.
func (h *AuditLogHandle) Shutdown() error {
	if h.Log == nil {
		return nil
	}
	return h.Close()
}

// ProvideAuditLog provides the Badger-backed request audit log.
func ProvideAuditLog(i do.Injector) (*AuditLogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Audit.Enabled {
		log.Info("Audit log disabled by configuration")
		return &AuditLogHandle{}, nil
	}

	l, err := audit.Open(audit.Options{
		Path:   cfg.AuditPath(),
		Logger: log.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &AuditLogHandle{Log: l}, nil
}

// AuditPruneJob periodically drops audit records past the retention window.
type AuditPruneJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable. It returns once the job has stopped,
// so the audit log can be closed after it.
func (j *AuditPruneJob) Shutdown() error {
	j.cancel()
	<-j.done
	return nil
}

// ProvideAuditPruneJob provides the periodic audit pruning job.
func ProvideAuditPruneJob(i do.Injector) (*AuditPruneJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	auditHandle := do.MustInvoke[*AuditLogHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())
	job := &AuditPruneJob{cancel: cancel, done: make(chan struct{})}
	if auditHandle.Log == nil || cfg.Audit.Retention == 0 {
		close(job.done)
		return job, nil
	}

	prune := func(initial bool) {
		count, err := auditHandle.Prune(ctx, time.Now().Add(-cfg.Audit.Retention))
		switch {
		case err != nil:
			log.Warn("Audit prune failed", "error", err, "initial", initial)
		case count > 0:
			log.Info("Audit prune completed", "deleted", count, "initial", initial)
		}
	}

	go func() {
		defer close(job.done)
		ticker := time.NewTicker(auditPruneInterval)
		defer ticker.Stop()

		prune(true)
		for {
			select {
			case <-ticker.C:
				prune(false)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Audit prune job started", "retention", cfg.Audit.Retention)

	return job, nil
}
