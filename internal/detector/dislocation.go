package detector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/market-signals-service/internal/config"
	"github.com/cypherlabdev/market-signals-service/internal/metrics"
	"github.com/cypherlabdev/market-signals-service/internal/models"
	"github.com/cypherlabdev/market-signals-service/internal/store"
	"github.com/cypherlabdev/market-signals-service/pkg/dynamics"
)

// Deviation delta types stored in signal metadata
const (
	DeltaTypeLine        = "line"
	DeltaTypeImpliedProb = "implied_prob"
)

// Cooldowns is the cross-cycle dedupe surface the detector needs from Redis
type Cooldowns interface {
	AcquireCooldown(ctx context.Context, eventID, market, outcome string, ttl time.Duration) (bool, error)
}

// DislocationDetector flags the single most extreme outlier venue per
// (event, market, outcome) against the consensus baseline
type DislocationDetector struct {
	store  *store.Store
	cache  Cooldowns
	cfg    config.DetectionConfig
	logger zerolog.Logger
}

// NewDislocationDetector creates a new dislocation detector
func NewDislocationDetector(st *store.Store, cache Cooldowns, cfg config.DetectionConfig, logger zerolog.Logger) *DislocationDetector {
	return &DislocationDetector{
		store:  st,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With().Str("component", "dislocation_detector").Logger(),
	}
}

type deviation struct {
	quote     models.Quote
	delta     float64
	deltaType string
}

// Detect scans the quote batch for venues quoting far from consensus. Keys
// with no consensus baseline or too few contributing books are skipped
// silently; at most one signal is emitted per key per pass.
func (d *DislocationDetector) Detect(ctx context.Context, quotes []models.Quote) ([]*models.Signal, error) {
	groups := groupQuotes(quotes)
	var signals []*models.Signal

	for key, batch := range groups {
		consensus, err := d.store.LatestConsensus(ctx, key.eventID, key.market, key.outcome)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch consensus: %w", err)
		}
		if consensus == nil || consensus.BooksCount < d.cfg.MinBooks {
			// Normal steady-state gap, not an error
			continue
		}

		worst := d.worstDeviation(batch, consensus)
		if worst == nil {
			continue
		}

		acquired, err := d.cache.AcquireCooldown(ctx, key.eventID, key.market, key.outcome, d.cfg.CooldownTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to check cooldown: %w", err)
		}
		if !acquired {
			continue
		}

		signals = append(signals, d.buildSignal(key, worst, consensus))
	}

	if err := d.store.InsertSignals(ctx, signals); err != nil {
		return nil, fmt.Errorf("failed to insert dislocation signals: %w", err)
	}

	metrics.SignalsEmitted.WithLabelValues(string(models.SignalDislocation)).Add(float64(len(signals)))
	d.logger.Debug().
		Int("groups", len(groups)).
		Int("signals", len(signals)).
		Msg("dislocation pass complete")

	return signals, nil
}

// worstDeviation returns the maximum-magnitude deviation among eligible
// venues, or nil when no venue clears the configured threshold. The delta
// type is resolved once per key from the consensus row: a line market
// measures every venue in points and skips quotes without a line, so point
// and probability magnitudes are never compared against each other.
func (d *DislocationDetector) worstDeviation(batch []models.Quote, consensus *models.ConsensusPoint) *deviation {
	lineMarket := consensus.ConsensusLine != nil
	if !lineMarket && consensus.ConsensusPrice == nil {
		return nil
	}

	var worst *deviation
	for _, q := range batch {
		var dev deviation
		if lineMarket {
			if q.Line == nil {
				continue
			}
			dev = deviation{quote: q, delta: *q.Line - *consensus.ConsensusLine, deltaType: DeltaTypeLine}
		} else {
			dev = deviation{
				quote:     q,
				delta:     dynamics.ImpliedProbability(q.Price) - dynamics.ImpliedProbability(*consensus.ConsensusPrice),
				deltaType: DeltaTypeImpliedProb,
			}
		}

		if worst == nil || math.Abs(dev.delta) > math.Abs(worst.delta) {
			w := dev
			worst = &w
		}
	}

	if worst == nil {
		return nil
	}

	threshold := d.cfg.LineDeviationThreshold
	if worst.deltaType == DeltaTypeImpliedProb {
		threshold = d.cfg.ProbDeviationThreshold
	}
	if math.Abs(worst.delta) < threshold {
		return nil
	}
	return worst
}

func (d *DislocationDetector) buildSignal(key quoteKey, worst *deviation, consensus *models.ConsensusPoint) *models.Signal {
	direction := models.DirectionUp
	if worst.delta < 0 {
		direction = models.DirectionDown
	}

	metadata := models.JSONMap{
		"book_key":     worst.quote.Venue,
		"outcome_name": key.outcome,
		"delta":        worst.delta,
		"delta_type":   worst.deltaType,
		"book_price":   worst.quote.Price,
	}
	if worst.quote.Line != nil {
		metadata["book_line"] = *worst.quote.Line
	}
	if consensus.ConsensusLine != nil {
		metadata["consensus_line"] = *consensus.ConsensusLine
	}
	if consensus.ConsensusPrice != nil {
		metadata["consensus_price"] = *consensus.ConsensusPrice
	}
	if consensus.Dispersion != nil {
		metadata["dispersion"] = *consensus.Dispersion
	}

	sig := &models.Signal{
		ID:            uuid.New(),
		EventID:       key.eventID,
		Market:        key.market,
		SignalType:    models.SignalDislocation,
		Direction:     direction,
		BooksAffected: 1,
		Metadata:      metadata,
		CreatedAt:     worst.quote.FetchedAt,
	}

	if worst.deltaType == DeltaTypeLine {
		sig.FromValue = *consensus.ConsensusLine
		sig.ToValue = *worst.quote.Line
	} else {
		sig.FromValue = dynamics.ImpliedProbability(*consensus.ConsensusPrice)
		sig.ToValue = dynamics.ImpliedProbability(worst.quote.Price)
	}
	if consensus.ConsensusPrice != nil {
		sig.FromPrice = intPtr(*consensus.ConsensusPrice)
	}
	sig.ToPrice = intPtr(worst.quote.Price)

	return sig
}

type quoteKey struct {
	eventID string
	market  string
	outcome string
}

func groupQuotes(quotes []models.Quote) map[quoteKey][]models.Quote {
	groups := make(map[quoteKey][]models.Quote)
	for _, q := range quotes {
		key := quoteKey{eventID: q.EventID, market: q.Market, outcome: q.OutcomeName}
		groups[key] = append(groups[key], q)
	}
	return groups
}
