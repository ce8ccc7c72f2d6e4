// Package reconcile decides whether a telemetry sample improves a pilot's
// best record and applies the improvement to the event store.
package reconcile

import (
	"context"
	"time"

	"github.com/angelosachet/AC-websocket-server/internal/domain/model"
	"github.com/angelosachet/AC-websocket-server/internal/domain/throttle"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
	"github.com/angelosachet/AC-websocket-server/pkg/metrics"
)

// TableStore is the slice of the event store the reconciler needs. Update
// runs fn atomically against the event's table, so the improvement decision
// and the record replacement happen as one step even when several producers
// reconcile the same event at once.
type TableStore interface {
	Update(ctx context.Context, event string, fn func(*model.EventTable) bool) (bool, error)
}

// Reconciler evaluates samples against stored best records.
type Reconciler struct {
	store        TableStore
	ledger       throttle.Ledger
	defaultEvent string
	log          logger.Logger

	now func() time.Time
}

// New creates a Reconciler over store with a throttle ledger.
func New(store TableStore, ledger throttle.Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:        store,
		ledger:       ledger,
		defaultEvent: model.DefaultEventName,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Named("reconcile")
	}
	return r
}

// Reconcile evaluates one sample. Returns true when the pilot's record was
// created or improved. Samples without a usable candidate, throttled
// repeats, and non-improving candidates are all no-ops.
//
// The bestLap/bestTime synonym pair is resolved once via BestCandidate; the
// throttle ledger compares the resolved value, never a specific field.
func (r *Reconciler) Reconcile(ctx context.Context, sample *model.TelemetrySample) (bool, error) {
	candidate := sample.BestCandidate()
	if candidate <= 0 {
		return false, nil
	}

	event := sample.EventOrDefault(r.defaultEvent)

	if !r.ledger.ShouldProcess(ctx, event, sample.PilotName, candidate) {
		metrics.RecordReconcileThrottled()
		return false, nil
	}

	now := r.now()
	var standing int64

	// The compare and the replacement run as one atomic step inside the
	// store; a concurrent acceptance for another pilot on the same event is
	// never discarded, and a concurrent improvement for the same pilot is
	// re-compared against, not overwritten blindly.
	improved, err := r.store.Update(ctx, event, func(table *model.EventTable) bool {
		// Strictly less: an equal time never overwrites the provenance
		// (car/track/timestamp) of the first achiever.
		if existing, has := table.Pilots[sample.PilotName]; has && candidate >= existing.BestLapTimeMS {
			standing = existing.BestLapTimeMS
			return false
		}
		table.SetRecord(model.BestRecord{
			PilotName:     sample.PilotName,
			BestLapTimeMS: candidate,
			Car:           sample.Car,
			Track:         sample.Track,
			Timestamp:     now,
			SimID:         sample.SimID,
		}, now)
		return true
	})
	if err != nil {
		return false, err
	}

	if !improved {
		metrics.RecordReconcileRejected()
		r.log.Debug(ctx, "candidate does not improve record",
			logger.String("event", event),
			logger.String("pilot", sample.PilotName),
			logger.Int64("candidate", candidate),
			logger.Int64("best", standing),
		)
		return false, nil
	}

	metrics.RecordRecordImproved()
	r.log.Info(ctx, "best record improved",
		logger.String("event", event),
		logger.String("pilot", sample.PilotName),
		logger.Int64("bestLapTime", candidate),
	)
	return true, nil
}
