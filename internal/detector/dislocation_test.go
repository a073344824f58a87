package detector

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/market-signals-service/internal/models"
)

func spreadQuotes(at time.Time, lines map[string]float64) []models.Quote {
	quotes := make([]models.Quote, 0, len(lines))
	for venue, line := range lines {
		quotes = append(quotes, models.Quote{
			EventID:     "ev1",
			Market:      "spreads",
			OutcomeName: "Team A",
			Venue:       venue,
			Line:        floatPtr(line),
			Price:       -110,
			FetchedAt:   at,
		})
	}
	return quotes
}

func seedConsensus(t *testing.T, setup *testDetectorSetup, line float64, books int, at time.Time) {
	t.Helper()
	require.NoError(t, setup.store.InsertConsensus(setup.ctx, []models.ConsensusPoint{{
		EventID:       "ev1",
		Market:        "spreads",
		OutcomeName:   "Team A",
		ConsensusLine: floatPtr(line),
		BooksCount:    books,
		FetchedAt:     at,
	}}))
}

// TestDetectDislocation_OutlierVenue tests that the single worst outlier
// against consensus is flagged
func TestDetectDislocation_OutlierVenue(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-90 * time.Minute)
	seedConsensus(t, setup, -4.0, 6, now)

	quotes := spreadQuotes(now, map[string]float64{
		"pinnacle":   -4.1,
		"draftkings": -4.4,
		"fanduel":    -3.8,
		"betmgm":     -4.0,
		"caesars":    -3.5,
		"bovada":     -2.7,
	})

	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, models.SignalDislocation, sig.SignalType)
	assert.Equal(t, models.DirectionUp, sig.Direction)
	assert.Equal(t, "bovada", sig.Metadata.String("book_key"))
	assert.Equal(t, "Team A", sig.Metadata.String("outcome_name"))
	assert.Equal(t, DeltaTypeLine, sig.Metadata.String("delta_type"))
	assert.InDelta(t, 1.3, *sig.Metadata.Float("delta"), 1e-9)
	assert.Equal(t, -4.0, sig.FromValue)
	assert.Equal(t, -2.7, sig.ToValue)
	assert.Equal(t, 1, sig.BooksAffected)

	persisted, err := setup.store.SignalsByEvent(setup.ctx, "ev1")
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

// TestDetectDislocation_NoConsensus tests the silent skip when no baseline
// exists
func TestDetectDislocation_NoConsensus(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	quotes := spreadQuotes(tipTime.Add(-time.Hour), map[string]float64{"bovada": -2.7})
	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

// TestDetectDislocation_TooFewBooks tests the min-books floor
func TestDetectDislocation_TooFewBooks(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	seedConsensus(t, setup, -4.0, 4, now)

	quotes := spreadQuotes(now, map[string]float64{"bovada": -2.7})
	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

// TestDetectDislocation_BelowThreshold tests that sub-threshold deviations
// stay silent
func TestDetectDislocation_BelowThreshold(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	seedConsensus(t, setup, -4.0, 6, now)

	quotes := spreadQuotes(now, map[string]float64{
		"pinnacle": -4.1,
		"fanduel":  -3.8,
	})
	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

// TestDetectDislocation_CooldownSuppression tests that a second pass within
// the TTL emits nothing for the same key
func TestDetectDislocation_CooldownSuppression(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	seedConsensus(t, setup, -4.0, 6, now)
	quotes := spreadQuotes(now, map[string]float64{"bovada": -2.7})

	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signals, err = detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	assert.Empty(t, signals)

	// After the TTL the key is detectable again
	setup.mini.FastForward(setup.cfg.CooldownTTL + time.Second)
	signals, err = detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

// TestDetectDislocation_LineMarketIgnoresLinelessQuotes tests that a line
// market never weighs a quote's implied-probability gap against point deltas:
// a lineless venue with an extreme price must not out-rank an in-threshold
// line quote
func TestDetectDislocation_LineMarketIgnoresLinelessQuotes(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	require.NoError(t, setup.store.InsertConsensus(setup.ctx, []models.ConsensusPoint{{
		EventID:        "ev1",
		Market:         "spreads",
		OutcomeName:    "Team A",
		ConsensusLine:  floatPtr(-4.0),
		ConsensusPrice: intPtr(-110),
		BooksCount:     6,
		FetchedAt:      now,
	}}))

	// fanduel is 0.3 points off (under the 0.5 line threshold); bovada has no
	// line but a price ~0.45 of implied probability away, which would win a
	// cross-unit magnitude comparison
	quotes := []models.Quote{
		{EventID: "ev1", Market: "spreads", OutcomeName: "Team A",
			Venue: "fanduel", Line: floatPtr(-3.7), Price: -110, FetchedAt: now},
		{EventID: "ev1", Market: "spreads", OutcomeName: "Team A",
			Venue: "bovada", Price: 1250, FetchedAt: now},
	}

	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

// TestDetectDislocation_LineMarketOutlierStillWins tests that skipping
// lineless quotes does not mask a genuine line outlier in the same batch
func TestDetectDislocation_LineMarketOutlierStillWins(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	require.NoError(t, setup.store.InsertConsensus(setup.ctx, []models.ConsensusPoint{{
		EventID:        "ev1",
		Market:         "spreads",
		OutcomeName:    "Team A",
		ConsensusLine:  floatPtr(-4.0),
		ConsensusPrice: intPtr(-110),
		BooksCount:     6,
		FetchedAt:      now,
	}}))

	quotes := []models.Quote{
		{EventID: "ev1", Market: "spreads", OutcomeName: "Team A",
			Venue: "bovada", Price: 1250, FetchedAt: now},
		{EventID: "ev1", Market: "spreads", OutcomeName: "Team A",
			Venue: "caesars", Line: floatPtr(-2.7), Price: -110, FetchedAt: now},
	}

	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "caesars", signals[0].Metadata.String("book_key"))
	assert.Equal(t, DeltaTypeLine, signals[0].Metadata.String("delta_type"))
	assert.InDelta(t, 1.3, *signals[0].Metadata.Float("delta"), 1e-9)
}

// TestDetectDislocation_ImpliedProbPath tests h2h markets where deviation is
// measured in implied probability
func TestDetectDislocation_ImpliedProbPath(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	detector := NewDislocationDetector(setup.store, setup.cache, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	require.NoError(t, setup.store.InsertConsensus(setup.ctx, []models.ConsensusPoint{{
		EventID:        "ev1",
		Market:         "h2h",
		OutcomeName:    "Team A",
		ConsensusPrice: intPtr(-110),
		BooksCount:     6,
		FetchedAt:      now,
	}}))

	// -110 implies ~0.5238; +125 implies ~0.4444, a ~0.079 gap
	quotes := []models.Quote{{
		EventID: "ev1", Market: "h2h", OutcomeName: "Team A",
		Venue: "bovada", Price: 125, FetchedAt: now,
	}}

	signals, err := detector.Detect(setup.ctx, quotes)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, DeltaTypeImpliedProb, sig.Metadata.String("delta_type"))
	assert.Equal(t, models.DirectionDown, sig.Direction)
	assert.InDelta(t, -0.0794, *sig.Metadata.Float("delta"), 1e-3)
	assert.Equal(t, 125, *sig.ToPrice)
}
