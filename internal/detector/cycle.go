package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cypherlabdev/market-signals-service/internal/config"
	"github.com/cypherlabdev/market-signals-service/internal/metrics"
	"github.com/cypherlabdev/market-signals-service/internal/models"
	"github.com/cypherlabdev/market-signals-service/internal/store"
)

// CycleLock is the distributed lock guarding a detection cycle across
// horizontally scaled workers
type CycleLock interface {
	AcquireCycleLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseCycleLock(ctx context.Context) error
}

// Cycle runs one full detection pass over an ingested quote batch. Detectors
// run strictly sequentially: propagation and regime read what the ledger and
// dislocation detector wrote this cycle.
type Cycle struct {
	store       *store.Store
	lock        CycleLock
	ledger      *MoveLedger
	dislocation *DislocationDetector
	propagation *PropagationEngine
	regime      *RegimeDetector
	cfg         config.DetectionConfig
	logger      zerolog.Logger
}

// NewCycle creates a new detection cycle runner
func NewCycle(
	st *store.Store,
	lock CycleLock,
	ledger *MoveLedger,
	dislocation *DislocationDetector,
	propagation *PropagationEngine,
	regime *RegimeDetector,
	cfg config.DetectionConfig,
	logger zerolog.Logger,
) *Cycle {
	return &Cycle{
		store:       st,
		lock:        lock,
		ledger:      ledger,
		dislocation: dislocation,
		propagation: propagation,
		regime:      regime,
		cfg:         cfg,
		logger:      logger.With().Str("component", "detection_cycle").Logger(),
	}
}

// Run executes one detection cycle for the batch. A worker that loses the
// lock race skips the cycle entirely; there is no queueing or retry within
// the cycle. Ledger and dislocation failures abort the cycle since later
// stages depend on their writes; propagation and regime are enrichments and
// degrade to a logged warning.
func (c *Cycle) Run(ctx context.Context, batch models.QuoteBatchMessage) error {
	acquired, err := c.lock.AcquireCycleLock(ctx, c.cfg.CycleLockTTL)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !acquired {
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		c.logger.Debug().Str("batch_id", batch.BatchID).Msg("cycle lock held elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := c.lock.ReleaseCycleLock(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("failed to release cycle lock")
		}
	}()

	if err := c.persistInputs(ctx, batch); err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return err
	}

	eventIDs := touchedEvents(batch.Quotes)
	commence, err := c.store.CommenceTimes(ctx, eventIDs)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to load commence times: %w", err)
	}

	moves, err := c.ledger.RecordMoves(ctx, batch.Quotes, commence)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("move ledger pass failed: %w", err)
	}

	signals, err := c.dislocation.Detect(ctx, batch.Quotes)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("dislocation pass failed: %w", err)
	}

	now := batch.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if _, err := c.propagation.Detect(ctx, now, commence); err != nil {
		c.logger.Error().Err(err).Msg("propagation pass failed, continuing cycle")
	}

	if _, err := c.regime.Run(ctx, eventIDs, signals, now); err != nil {
		c.logger.Error().Err(err).Msg("regime pass failed, continuing cycle")
	}

	metrics.CyclesTotal.WithLabelValues("completed").Inc()
	c.logger.Info().
		Str("batch_id", batch.BatchID).
		Int("quotes", len(batch.Quotes)).
		Int("moves", len(moves)).
		Int("dislocations", len(signals)).
		Msg("detection cycle complete")

	return nil
}

// persistInputs lands the externally produced batch records before any
// detector runs
func (c *Cycle) persistInputs(ctx context.Context, batch models.QuoteBatchMessage) error {
	if err := c.store.UpsertEvents(ctx, batch.Events); err != nil {
		return fmt.Errorf("failed to persist events: %w", err)
	}
	if err := c.store.InsertQuotes(ctx, batch.Quotes); err != nil {
		return fmt.Errorf("failed to persist quotes: %w", err)
	}
	if err := c.store.InsertConsensus(ctx, batch.Consensus); err != nil {
		return fmt.Errorf("failed to persist consensus: %w", err)
	}
	return nil
}

func touchedEvents(quotes []models.Quote) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, q := range quotes {
		if _, ok := seen[q.EventID]; ok {
			continue
		}
		seen[q.EventID] = struct{}{}
		ids = append(ids, q.EventID)
	}
	return ids
}
