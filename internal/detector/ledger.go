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

// MoveLedger diffs each incoming quote against its immediate predecessor and
// records immutable move events. No signals are raised here; downstream
// detectors read the ledger.
type MoveLedger struct {
	store  *store.Store
	cfg    config.DetectionConfig
	logger zerolog.Logger
}

// NewMoveLedger creates a new move ledger
func NewMoveLedger(st *store.Store, cfg config.DetectionConfig, logger zerolog.Logger) *MoveLedger {
	return &MoveLedger{
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "move_ledger").Logger(),
	}
}

// RecordMoves compares each quote in the batch with the most recent strictly
// older quote for the same (event, market, outcome, venue) key and appends
// one move event per changed venue. First observations and unchanged quotes
// are skipped. All writes are flushed in a single batch.
func (l *MoveLedger) RecordMoves(ctx context.Context, quotes []models.Quote, commence map[string]time.Time) ([]models.QuoteMoveEvent, error) {
	moves := make([]models.QuoteMoveEvent, 0, len(quotes))

	for _, q := range quotes {
		prev, err := l.store.PreviousQuote(ctx, q.EventID, q.Market, q.OutcomeName, q.Venue, q.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to look up previous quote: %w", err)
		}
		if prev == nil {
			// First observation for this key, nothing to diff
			continue
		}
		if linesEqual(prev.Line, q.Line) && prev.Price == q.Price {
			continue
		}

		move := models.QuoteMoveEvent{
			EventID:     q.EventID,
			Market:      q.Market,
			OutcomeName: q.OutcomeName,
			Venue:       q.Venue,
			VenueTier:   l.cfg.TierFor(q.Venue),
			OldLine:     prev.Line,
			NewLine:     q.Line,
			Delta:       lineDelta(prev.Line, q.Line),
			OldPrice:    intPtr(prev.Price),
			NewPrice:    intPtr(q.Price),
			PriceDelta:  intPtr(q.Price - prev.Price),
			Timestamp:   q.FetchedAt,
		}
		if tip, ok := commence[q.EventID]; ok {
			move.MinutesToTip = floatPtr(tip.Sub(q.FetchedAt).Minutes())
		}
		moves = append(moves, move)
	}

	if err := l.store.InsertMoveEvents(ctx, moves); err != nil {
		return nil, fmt.Errorf("failed to insert move events: %w", err)
	}

	metrics.MovesRecorded.Add(float64(len(moves)))
	l.logger.Debug().
		Int("quotes", len(quotes)).
		Int("moves", len(moves)).
		Msg("recorded quote moves")

	return moves, nil
}

// lineDelta is null-safe: nil when either side has no line
func lineDelta(old, new *float64) *float64 {
	if old == nil || new == nil {
		return nil
	}
	return floatPtr(*new - *old)
}

func linesEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
