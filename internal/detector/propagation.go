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

// Dispersion-before is measured over the minute preceding the origin move
const dispersionLeadIn = time.Minute

// PropagationEngine measures how widely the earliest mover's direction is
// adopted across venues within the trailing window
type PropagationEngine struct {
	store  *store.Store
	cfg    config.DetectionConfig
	logger zerolog.Logger
}

// NewPropagationEngine creates a new propagation engine
func NewPropagationEngine(st *store.Store, cfg config.DetectionConfig, logger zerolog.Logger) *PropagationEngine {
	return &PropagationEngine{
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "propagation_engine").Logger(),
	}
}

// Detect groups move events from the trailing window by key, identifies the
// origin mover per group and emits one propagation event per group where at
// least two venues moved the same direction. There is no dedupe: the window
// and upstream move cadence rate-limit emissions naturally.
func (p *PropagationEngine) Detect(ctx context.Context, now time.Time, commence map[string]time.Time) ([]models.PropagationEvent, error) {
	windowStart := now.Add(-p.cfg.PropagationWindow)
	moves, err := p.store.MoveEventsSince(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load move events: %w", err)
	}

	groups := make(map[quoteKey][]models.QuoteMoveEvent)
	for _, m := range moves {
		key := quoteKey{eventID: m.EventID, market: m.Market, outcome: m.OutcomeName}
		groups[key] = append(groups[key], m)
	}

	var events []models.PropagationEvent
	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		event, err := p.analyzeGroup(ctx, key, group, windowStart, now, commence)
		if err != nil {
			return nil, err
		}
		if event != nil {
			events = append(events, *event)
		}
	}

	if err := p.store.InsertPropagationEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("failed to insert propagation events: %w", err)
	}

	metrics.PropagationEvents.Add(float64(len(events)))
	p.logger.Debug().
		Int("groups", len(groups)).
		Int("events", len(events)).
		Msg("propagation pass complete")

	return events, nil
}

// analyzeGroup resolves the origin, adopters and dispersion shift for one
// (event, market, outcome) group. Moves arrive ordered oldest first.
func (p *PropagationEngine) analyzeGroup(ctx context.Context, key quoteKey, group []models.QuoteMoveEvent, windowStart, now time.Time, commence map[string]time.Time) (*models.PropagationEvent, error) {
	origin := group[0]
	originDelta := *origin.Delta
	negative := originDelta < 0

	adopters := make(map[string]struct{})
	movers := make(map[string]struct{})
	for _, m := range group {
		movers[m.Venue] = struct{}{}
		if (*m.Delta < 0) == negative && *m.Delta != 0 {
			adopters[m.Venue] = struct{}{}
		}
	}
	if len(adopters) < 2 {
		return nil, nil
	}

	quotes, err := p.store.QuotesBetween(ctx, key.eventID, key.market, key.outcome, windowStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load window quotes: %w", err)
	}
	quoting := make(map[string]struct{})
	latestLines := make(map[string]float64)
	for _, q := range quotes {
		quoting[q.Venue] = struct{}{}
		if q.Line != nil {
			latestLines[q.Venue] = *q.Line
		}
	}

	total := len(quoting)
	if len(movers) > total {
		total = len(movers)
	}

	event := models.PropagationEvent{
		EventID:         key.eventID,
		MarketKey:       key.market,
		OutcomeName:     key.outcome,
		OriginVenue:     origin.Venue,
		OriginTier:      origin.VenueTier,
		OriginDelta:     originDelta,
		OriginTimestamp: origin.Timestamp,
		AdoptionCount:   len(adopters),
		TotalVenues:     total,
		AdoptionPercent: float64(len(adopters)) / float64(total),
		CreatedAt:       now,
	}

	before, err := p.dispersionBefore(ctx, key, origin.Timestamp)
	if err != nil {
		return nil, err
	}
	event.DispersionBefore = before

	if len(latestLines) > 0 {
		lines := make([]float64, 0, len(latestLines))
		for _, line := range latestLines {
			lines = append(lines, line)
		}
		event.DispersionAfter = floatPtr(dynamics.PopulationStdDev(lines))
	}

	if tip, ok := commence[key.eventID]; ok {
		event.MinutesToTip = floatPtr(tip.Sub(now).Minutes())
	}

	return &event, nil
}

// dispersionBefore measures line spread in the minute before the origin move,
// reaching one window further back when that minute is too sparse. The origin
// timestamp itself is excluded: the quote written at that instant already
// carries the post-move line.
func (p *PropagationEngine) dispersionBefore(ctx context.Context, key quoteKey, originAt time.Time) (*float64, error) {
	lines, err := p.lineValuesBefore(ctx, key, originAt.Add(-dispersionLeadIn), originAt)
	if err != nil {
		return nil, err
	}
	if len(lines) < 2 {
		lines, err = p.lineValuesBefore(ctx, key, originAt.Add(-dispersionLeadIn-p.cfg.PropagationWindow), originAt)
		if err != nil {
			return nil, err
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return floatPtr(dynamics.PopulationStdDev(lines)), nil
}

func (p *PropagationEngine) lineValuesBefore(ctx context.Context, key quoteKey, from, to time.Time) ([]float64, error) {
	quotes, err := p.store.QuotesBefore(ctx, key.eventID, key.market, key.outcome, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load pre-origin quotes: %w", err)
	}
	var lines []float64
	for _, q := range quotes {
		if q.Line != nil {
			lines = append(lines, *q.Line)
		}
	}
	return lines, nil
}
