package detector

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/market-signals-service/internal/config"
	"github.com/cypherlabdev/market-signals-service/internal/models"
)

func closingConfig() config.ClosingConfig {
	return config.ClosingConfig{
		BufferMinutes: 30,
		Horizon:       48 * time.Hour,
		Interval:      10 * time.Minute,
	}
}

// seedCommencedEvent inserts an event that tipped off two hours before now
// along with pre- and post-commence consensus history
func seedCommencedEvent(t *testing.T, setup *testDetectorSetup, now time.Time) time.Time {
	t.Helper()
	commence := now.Add(-2 * time.Hour)
	require.NoError(t, setup.store.UpsertEvents(setup.ctx, []models.Event{
		{EventID: "ev1", Sport: "americanfootball_nfl", CommenceTime: commence},
	}))
	require.NoError(t, setup.store.InsertConsensus(setup.ctx, []models.ConsensusPoint{
		{EventID: "ev1", Market: "spreads", OutcomeName: "Team A",
			ConsensusLine: floatPtr(-3.0), ConsensusPrice: intPtr(-110), BooksCount: 6,
			FetchedAt: commence.Add(-3 * time.Hour)},
		{EventID: "ev1", Market: "spreads", OutcomeName: "Team A",
			ConsensusLine: floatPtr(-3.5), ConsensusPrice: intPtr(-112), BooksCount: 7,
			FetchedAt: commence.Add(-5 * time.Minute)},
		// In-play drift must never become the closing baseline
		{EventID: "ev1", Market: "spreads", OutcomeName: "Team A",
			ConsensusLine: floatPtr(-7.0), ConsensusPrice: intPtr(-150), BooksCount: 4,
			FetchedAt: commence.Add(30 * time.Minute)},
	}))
	return commence
}

// TestFreezeClosingLines tests that the latest pre-commence consensus becomes
// the frozen baseline
func TestFreezeClosingLines(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewClosingEngine(setup.store, closingConfig(), zerolog.Nop())
	now := tipTime
	commence := seedCommencedEvent(t, setup, now)

	frozen, err := engine.FreezeClosingLines(setup.ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, frozen)

	closing, err := setup.store.ClosingConsensusFor(setup.ctx, "ev1", "spreads", "Team A")
	require.NoError(t, err)
	require.NotNil(t, closing)
	assert.Equal(t, -3.5, *closing.ClosingLine)
	assert.Equal(t, -112, *closing.ClosingPrice)
	assert.Equal(t, 7, closing.BooksCount)
	assert.True(t, closing.CapturedAt.Equal(commence.Add(-5*time.Minute)))
}

// TestFreezeClosingLines_Idempotent tests that a re-run recomputes the same
// row instead of stacking duplicates
func TestFreezeClosingLines_Idempotent(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewClosingEngine(setup.store, closingConfig(), zerolog.Nop())
	now := tipTime
	seedCommencedEvent(t, setup, now)

	_, err := engine.FreezeClosingLines(setup.ctx, now)
	require.NoError(t, err)
	_, err = engine.FreezeClosingLines(setup.ctx, now.Add(10*time.Minute))
	require.NoError(t, err)

	closing, err := setup.store.ClosingConsensusFor(setup.ctx, "ev1", "spreads", "Team A")
	require.NoError(t, err)
	require.NotNil(t, closing)
	assert.Equal(t, -3.5, *closing.ClosingLine)
}

// TestFreezeClosingLines_BufferNotElapsed tests that freshly commenced events
// wait out the buffer
func TestFreezeClosingLines_BufferNotElapsed(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewClosingEngine(setup.store, closingConfig(), zerolog.Nop())
	now := tipTime
	require.NoError(t, setup.store.UpsertEvents(setup.ctx, []models.Event{
		{EventID: "ev1", CommenceTime: now.Add(-10 * time.Minute)},
	}))

	frozen, err := engine.FreezeClosingLines(setup.ctx, now)
	require.NoError(t, err)
	assert.Zero(t, frozen)
}

// TestSettleCLV_Dislocation tests line CLV settlement of a dislocation signal
// against the frozen baseline
func TestSettleCLV_Dislocation(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewClosingEngine(setup.store, closingConfig(), zerolog.Nop())
	now := tipTime
	commence := seedCommencedEvent(t, setup, now)

	sig := &models.Signal{
		ID:         uuid.New(),
		EventID:    "ev1",
		Market:     "spreads",
		SignalType: models.SignalDislocation,
		Metadata: models.JSONMap{
			"outcome_name": "Team A",
			"book_line":    -2.7,
			"book_price":   -110,
		},
		CreatedAt: commence.Add(-90 * time.Minute),
	}
	require.NoError(t, setup.store.InsertSignals(setup.ctx, []*models.Signal{sig}))

	require.NoError(t, engine.Run(setup.ctx, now))

	records, err := setup.store.ClvByEvent(setup.ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, sig.ID, record.SignalID)
	assert.Equal(t, "Team A", record.OutcomeName)
	assert.Equal(t, -2.7, *record.EntryLine)
	assert.Equal(t, -3.5, *record.CloseLine)
	// Close moved from -2.7 to -3.5
	assert.InDelta(t, -0.8, *record.ClvLine, 1e-9)
	require.NotNil(t, record.ClvProb)

	// Settlement is write-once: a re-run inserts nothing new
	settled, err := engine.SettleCLV(setup.ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, settled)
}

// TestSettleCLV_SteamEntry tests that steam signals settle at the post-move
// line from metadata
func TestSettleCLV_SteamEntry(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewClosingEngine(setup.store, closingConfig(), zerolog.Nop())
	now := tipTime
	commence := seedCommencedEvent(t, setup, now)

	sig := &models.Signal{
		ID:         uuid.New(),
		EventID:    "ev1",
		Market:     "spreads",
		SignalType: models.SignalSteam,
		Metadata: models.JSONMap{
			"outcome_name": "Team A",
			"end_line":     -3.0,
			"end_price":    -115,
		},
		CreatedAt: commence.Add(-time.Hour),
	}
	require.NoError(t, setup.store.InsertSignals(setup.ctx, []*models.Signal{sig}))

	require.NoError(t, engine.Run(setup.ctx, now))

	records, err := setup.store.ClvByEvent(setup.ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, -3.0, *records[0].EntryLine)
	assert.InDelta(t, -0.5, *records[0].ClvLine, 1e-9)
}

// TestSettleCLV_SkipsPostCommenceSignals tests that in-play signals never
// settle
func TestSettleCLV_SkipsPostCommenceSignals(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewClosingEngine(setup.store, closingConfig(), zerolog.Nop())
	now := tipTime
	commence := seedCommencedEvent(t, setup, now)

	sig := &models.Signal{
		ID:         uuid.New(),
		EventID:    "ev1",
		Market:     "spreads",
		SignalType: models.SignalDislocation,
		Metadata: models.JSONMap{
			"outcome_name": "Team A",
			"book_line":    -6.5,
			"book_price":   -110,
		},
		CreatedAt: commence.Add(20 * time.Minute),
	}
	require.NoError(t, setup.store.InsertSignals(setup.ctx, []*models.Signal{sig}))

	require.NoError(t, engine.Run(setup.ctx, now))

	records, err := setup.store.ClvByEvent(setup.ctx, "ev1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestSettleCLV_MissingOutcome tests the silent skip for signals without a
// resolvable outcome
func TestSettleCLV_MissingOutcome(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewClosingEngine(setup.store, closingConfig(), zerolog.Nop())
	now := tipTime
	commence := seedCommencedEvent(t, setup, now)

	sig := &models.Signal{
		ID:         uuid.New(),
		EventID:    "ev1",
		Market:     "spreads",
		SignalType: models.SignalDislocation,
		Metadata:   models.JSONMap{"book_line": -2.7},
		CreatedAt:  commence.Add(-time.Hour),
	}
	require.NoError(t, setup.store.InsertSignals(setup.ctx, []*models.Signal{sig}))

	require.NoError(t, engine.Run(setup.ctx, now))

	records, err := setup.store.ClvByEvent(setup.ctx, "ev1")
	require.NoError(t, err)
	assert.Empty(t, records)
}
