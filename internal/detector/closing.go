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
	"github.com/cypherlabdev/market-signals-service/pkg/dynamics"
)

// ClosingEngine freezes post-commence consensus baselines and settles every
// historical signal against them. Runs on a slower cadence than the
// detection cycle.
type ClosingEngine struct {
	store  *store.Store
	cfg    config.ClosingConfig
	logger zerolog.Logger
}

// NewClosingEngine creates a new closing engine
func NewClosingEngine(st *store.Store, cfg config.ClosingConfig, logger zerolog.Logger) *ClosingEngine {
	return &ClosingEngine{
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "closing_engine").Logger(),
	}
}

// Run executes both phases: freeze then settle
func (e *ClosingEngine) Run(ctx context.Context, now time.Time) error {
	if _, err := e.FreezeClosingLines(ctx, now); err != nil {
		return err
	}
	_, err := e.SettleCLV(ctx, now)
	return err
}

// eligibleEvents returns events whose commence time plus buffer has elapsed,
// bounded by the settlement horizon
func (e *ClosingEngine) eligibleEvents(ctx context.Context, now time.Time) ([]models.Event, error) {
	cutoff := now.Add(-time.Duration(e.cfg.BufferMinutes) * time.Minute)
	return e.store.EventsCommencedBetween(ctx, now.Add(-e.cfg.Horizon), cutoff)
}

// FreezeClosingLines upserts the latest pre-commence consensus point for
// every (event, market, outcome) of each eligible event. Idempotent: a
// re-run recomputes the same deterministic result and overwrites.
func (e *ClosingEngine) FreezeClosingLines(ctx context.Context, now time.Time) (int, error) {
	events, err := e.eligibleEvents(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to find eligible events: %w", err)
	}

	var closes []models.ClosingConsensus
	for _, event := range events {
		keys, err := e.store.DistinctConsensusKeys(ctx, event.EventID)
		if err != nil {
			return 0, fmt.Errorf("failed to list consensus keys: %w", err)
		}

		for _, key := range keys {
			point, err := e.store.LatestConsensusAt(ctx, event.EventID, key.Market, key.OutcomeName, event.CommenceTime)
			if err != nil {
				return 0, fmt.Errorf("failed to fetch closing consensus: %w", err)
			}
			if point == nil {
				// No pre-commence consensus was ever observed
				continue
			}
			closes = append(closes, models.ClosingConsensus{
				EventID:      event.EventID,
				Market:       key.Market,
				OutcomeName:  key.OutcomeName,
				ClosingLine:  point.ConsensusLine,
				ClosingPrice: point.ConsensusPrice,
				Dispersion:   point.Dispersion,
				BooksCount:   point.BooksCount,
				CapturedAt:   point.FetchedAt,
			})
		}
	}

	if err := e.store.UpsertClosingConsensus(ctx, closes); err != nil {
		return 0, fmt.Errorf("failed to upsert closing consensus: %w", err)
	}

	e.logger.Debug().
		Int("events", len(events)).
		Int("frozen", len(closes)).
		Msg("closing freeze complete")

	return len(closes), nil
}

// SettleCLV writes one CLV record per unsettled pre-commence signal of each
// eligible event. The anti-join against existing records makes re-runs
// insert nothing for already-settled signals.
func (e *ClosingEngine) SettleCLV(ctx context.Context, now time.Time) (int, error) {
	events, err := e.eligibleEvents(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to find eligible events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	commence := make(map[string]time.Time, len(events))
	eventIDs := make([]string, 0, len(events))
	for _, event := range events {
		commence[event.EventID] = event.CommenceTime
		eventIDs = append(eventIDs, event.EventID)
	}

	signals, err := e.store.UnsettledSignals(ctx, eventIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load unsettled signals: %w", err)
	}

	var records []models.ClvRecord
	for _, sig := range signals {
		if sig.CreatedAt.After(commence[sig.EventID]) {
			continue
		}

		entry, ok := entryValues(sig)
		if !ok {
			continue
		}

		closing, err := e.store.ClosingConsensusFor(ctx, sig.EventID, sig.Market, entry.outcome)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch closing baseline: %w", err)
		}
		if closing == nil {
			continue
		}

		record := models.ClvRecord{
			SignalID:    sig.ID,
			EventID:     sig.EventID,
			Market:      sig.Market,
			OutcomeName: entry.outcome,
			EntryLine:   entry.line,
			EntryPrice:  entry.price,
			CloseLine:   closing.ClosingLine,
			ClosePrice:  closing.ClosingPrice,
			SettledAt:   now,
		}
		if entry.line != nil && closing.ClosingLine != nil {
			record.ClvLine = floatPtr(*closing.ClosingLine - *entry.line)
		}
		if entry.price != nil && closing.ClosingPrice != nil {
			record.ClvProb = floatPtr(
				dynamics.ImpliedProbability(*closing.ClosingPrice) - dynamics.ImpliedProbability(*entry.price))
		}
		if record.ClvLine == nil && record.ClvProb == nil {
			continue
		}
		records = append(records, record)
	}

	if err := e.store.InsertClvRecords(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to insert clv records: %w", err)
	}

	metrics.ClvRecords.Add(float64(len(records)))
	e.logger.Info().
		Int("events", len(events)).
		Int("signals", len(signals)).
		Int("settled", len(records)).
		Msg("clv settlement complete")

	return len(records), nil
}

type entryPoint struct {
	outcome string
	line    *float64
	price   *int
}

// entryValues extracts the (outcome, line, price) a signal was entered at,
// using signal-type-specific metadata fields. Signals without a usable
// outcome are skipped, not errored.
func entryValues(sig *models.Signal) (entryPoint, bool) {
	outcome := sig.Metadata.String("outcome_name")
	if outcome == "" {
		return entryPoint{}, false
	}

	entry := entryPoint{outcome: outcome}
	switch sig.SignalType {
	case models.SignalDislocation:
		entry.line = sig.Metadata.Float("book_line")
		entry.price = sig.Metadata.Int("book_price")
	case models.SignalSteam:
		// A steam entry is taken at the post-move line
		entry.line = sig.Metadata.Float("end_line")
		if entry.line == nil {
			entry.line = sig.Metadata.Float("entry_line")
		}
		entry.price = sig.Metadata.Int("end_price")
		if entry.price == nil {
			entry.price = sig.Metadata.Int("entry_price")
		}
	default:
		entry.line = floatPtr(sig.ToValue)
		entry.price = sig.ToPrice
	}

	if entry.line == nil && entry.price == nil {
		return entryPoint{}, false
	}
	return entry, true
}
