// Package audit records privileged actions without ever failing the action itself.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/rs/zerolog"
)

// DefaultWriteTimeout bounds a single audit write.
const DefaultWriteTimeout = 5 * time.Second

// Store persists audit entries.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder writes audit entries in the background. Failures are logged and
// counted but never reported to the caller.
type Recorder struct {
	store   Store
	metrics *metrics.PrometheusMetrics
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewRecorder creates a new audit recorder.
func NewRecorder(store Store, m *metrics.PrometheusMetrics, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		metrics: m,
		timeout: DefaultWriteTimeout,
		logger:  logger.With().Str("component", "audit_recorder").Logger(),
	}
}

// Record schedules entry for persistence and returns immediately. The write
// outlives ctx cancellation but not the recorder's write timeout.
func (r *Recorder) Record(ctx context.Context, entry *models.AuditLog) {
	if entry == nil {
		return
	}
	if !models.IsValidAuditAction(entry.Action) {
		r.logger.Error().
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Msg("refusing to record unknown audit action")
		r.metrics.RecordAuditFailure(string(entry.Action))
		return
	}

	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		writeCtx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()

		if err := r.store.CreateAuditLog(writeCtx, entry); err != nil {
			r.logger.Error().Err(err).
				Str("action", string(entry.Action)).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("actor_id", entry.ActorID).
				Msg("failed to create audit log")
			r.metrics.RecordAuditFailure(string(entry.Action))
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
