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
	"github.com/cypherlabdev/market-signals-service/pkg/hmm"
)

// Normalization ceilings and weights for the volatility feature vector
const (
	dispersionCeiling = 50.0
	velocityCeiling   = 5.0
	booksCVCeiling    = 1.0

	meanDispersionWeight  = 0.35
	priceVelocityWeight   = 0.30
	dispersionTrendWeight = 0.20
	booksVariationWeight  = 0.15
)

// VolatilityFeatures is the normalized feature vector extracted from a window
// of consensus snapshots
type VolatilityFeatures struct {
	MeanDispersion  float64
	PriceVelocity   float64
	DispersionTrend float64
	BooksVariation  float64
	Composite       float64
	SnapshotsUsed   int
}

// ExtractVolatilityFeatures computes the feature vector from time-ordered
// consensus snapshots. Returns nil when fewer than minSnapshots are
// available; callers skip, they do not error.
func ExtractVolatilityFeatures(points []models.ConsensusPoint, minSnapshots int) *VolatilityFeatures {
	if len(points) < minSnapshots {
		return nil
	}

	feats := &VolatilityFeatures{SnapshotsUsed: len(points)}

	var dispersions []float64
	for _, p := range points {
		if p.Dispersion != nil {
			dispersions = append(dispersions, *p.Dispersion)
		}
	}
	feats.MeanDispersion = dynamics.Clamp01(dynamics.Mean(dispersions) / dispersionCeiling)

	series := make([]dynamics.SeriesPoint, 0, len(points))
	for _, p := range points {
		switch {
		case p.ConsensusLine != nil:
			series = append(series, dynamics.SeriesPoint{At: p.FetchedAt, Value: *p.ConsensusLine})
		case p.ConsensusPrice != nil:
			series = append(series, dynamics.SeriesPoint{At: p.FetchedAt, Value: float64(*p.ConsensusPrice)})
		}
	}
	feats.PriceVelocity = dynamics.Clamp01(dynamics.Velocity(series) / velocityCeiling)

	if len(dispersions) >= 2 {
		overall := dynamics.Mean(dispersions)
		if overall > 0 {
			mid := len(dispersions) / 2
			trend := (dynamics.Mean(dispersions[mid:]) - dynamics.Mean(dispersions[:mid])) / overall
			feats.DispersionTrend = dynamics.Clamp01(trend)
		}
	}

	books := make([]float64, 0, len(points))
	for _, p := range points {
		books = append(books, float64(p.BooksCount))
	}
	if mean := dynamics.Mean(books); mean > 0 {
		feats.BooksVariation = dynamics.Clamp01(dynamics.PopulationStdDev(books) / mean / booksCVCeiling)
	}

	feats.Composite = dynamics.Clamp01(
		meanDispersionWeight*feats.MeanDispersion +
			priceVelocityWeight*feats.PriceVelocity +
			dispersionTrendWeight*feats.DispersionTrend +
			booksVariationWeight*feats.BooksVariation)

	return feats
}

// RegimeDetector classifies market stability per (event, market) with the
// fixed-parameter HMM, persists one snapshot per group and enriches signal
// metadata through a side-channel map applied after all groups are done
type RegimeDetector struct {
	store  *store.Store
	model  *hmm.Model
	cfg    config.RegimeConfig
	logger zerolog.Logger
}

// NewRegimeDetector creates a new regime detector
func NewRegimeDetector(st *store.Store, cfg config.RegimeConfig, logger zerolog.Logger) *RegimeDetector {
	return &RegimeDetector{
		store:  st,
		model:  hmm.New(hmm.DefaultParams()),
		cfg:    cfg,
		logger: logger.With().Str("component", "regime_detector").Logger(),
	}
}

type regimeKey struct {
	eventID string
	market  string
}

// Run performs the full regime pass for the touched events: feature
// extraction, HMM inference, snapshot persistence and in-place metadata
// enrichment of the supplied signals. Disabled short-circuits to a no-op.
func (r *RegimeDetector) Run(ctx context.Context, eventIDs []string, signals []*models.Signal, now time.Time) ([]models.RegimeSnapshot, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}

	points, err := r.store.ConsensusSince(ctx, eventIDs, now.Add(-r.cfg.Lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load consensus history: %w", err)
	}

	groups := make(map[regimeKey][]models.ConsensusPoint)
	for _, p := range points {
		key := regimeKey{eventID: p.EventID, market: p.Market}
		groups[key] = append(groups[key], p)
	}

	var snapshots []models.RegimeSnapshot
	results := make(map[regimeKey]*hmm.Inference)

	for key, group := range groups {
		feats := ExtractVolatilityFeatures(group, r.cfg.MinSnapshots)
		if feats == nil {
			continue
		}

		inference, err := r.model.Infer([]float64{feats.Composite})
		if err != nil {
			return nil, fmt.Errorf("regime inference failed: %w", err)
		}
		results[key] = inference

		snapshots = append(snapshots, models.RegimeSnapshot{
			EventID:           key.eventID,
			Market:            key.market,
			RegimeLabel:       inference.Label,
			RegimeProbability: inference.Probability,
			TransitionRisk:    inference.TransitionRisk,
			StabilityScore:    inference.StabilityScore,
			ModelVersion:      r.cfg.ModelVersion,
			SnapshotsUsed:     feats.SnapshotsUsed,
			CreatedAt:         now,
		})
	}

	// Metadata is applied only after every group has been classified, so a
	// failed group never leaves signals half-enriched
	var enriched []*models.Signal
	for _, sig := range signals {
		inference, ok := results[regimeKey{eventID: sig.EventID, market: sig.Market}]
		if !ok {
			continue
		}
		if sig.Metadata == nil {
			sig.Metadata = models.JSONMap{}
		}
		sig.Metadata["regime"] = map[string]interface{}{
			"label":           inference.Label,
			"probability":     inference.Probability,
			"transition_risk": inference.TransitionRisk,
			"stability_score": inference.StabilityScore,
			"model_version":   r.cfg.ModelVersion,
		}
		enriched = append(enriched, sig)
	}

	if err := r.store.SaveSignalMetadata(ctx, enriched); err != nil {
		return nil, fmt.Errorf("failed to save enriched signals: %w", err)
	}
	if err := r.store.InsertRegimeSnapshots(ctx, snapshots); err != nil {
		return nil, fmt.Errorf("failed to insert regime snapshots: %w", err)
	}

	metrics.RegimeSnapshots.Add(float64(len(snapshots)))
	r.logger.Debug().
		Int("groups", len(groups)).
		Int("snapshots", len(snapshots)).
		Int("enriched_signals", len(enriched)).
		Msg("regime pass complete")

	return snapshots, nil
}
