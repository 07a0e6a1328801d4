// README: Pending-request ingestion: a live change feed filtered to pending
// requests, each notification handled on its own goroutine so one slow match
// never stalls the feed.
package matching

import (
	"context"
	"errors"
	"time"

	"ridelink/internal/observability"
	"ridelink/internal/schema"
	"ridelink/internal/store"
)

var pendingStatuses = []string{schema.RequestPending, schema.RequestPendingAgain}

// Run subscribes to pending requests on the passenger store and matches each
// one as it appears. It blocks until ctx ends; a non-nil return means the
// change feed could not be sustained, which is fatal to the engine.
func (s *Service) Run(ctx context.Context) error {
	q := store.Query{Field: "status", In: pendingStatuses}
	return s.passengers.Subscribe(ctx, schema.RequestsCollection, q, func(c store.Change) {
		if c.Kind == store.Removed {
			return
		}
		go s.handlePending(ctx, c.ID)
	})
}

// RunResweep periodically re-queries still-pending requests so a request
// stranded by a lost reservation race is retried even when no further change
// events arrive. Disabled when interval is zero.
func (s *Service) RunResweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			docs, err := s.passengers.Query(ctx, schema.RequestsCollection, store.Query{
				Field: "status",
				In:    pendingStatuses,
			})
			if err != nil {
				s.log.WithError(err).Warn("pending resweep query failed")
				continue
			}
			for _, doc := range docs {
				go s.handlePending(ctx, doc.ID)
			}
		}
	}
}

// handlePending re-reads the request to guard against stale or duplicate
// notifications, then runs one match cycle for it.
func (s *Service) handlePending(ctx context.Context, requestID string) {
	doc, err := s.passengers.Get(ctx, schema.RequestsCollection, requestID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.WithField("request_id", requestID).Warn("pending request vanished before matching")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("request_id", requestID).Warn("failed to re-read pending request")
		return
	}

	req := schema.Fields(doc.Data)
	switch req.Status() {
	case schema.RequestPending, schema.RequestPendingAgain:
	default:
		return // stale notification; someone already progressed it
	}

	observability.MatchAttemptsTotal.Inc()
	started := time.Now()
	proposalID, err := s.MatchRequest(ctx, requestID, req)
	observability.MatchLatency.Observe(time.Since(started).Seconds())

	log := s.log.WithField("request_id", requestID)
	switch {
	case err == nil:
		log.WithField("proposal_id", proposalID).Info("request proposed")
	case errors.Is(err, ErrNoMatch):
		log.Debug("no suitable driver; request stays pending")
	case errors.Is(err, ErrDriverContended):
		log.Info("lost reservation race; request stays pending")
	case errors.Is(err, ErrBadCoordinates):
		log.Warn("skipping request with unusable coordinates")
	default:
		log.WithError(err).Error("match cycle failed")
	}
}
