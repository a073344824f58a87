package detector

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/market-signals-service/internal/models"
)

func moveAt(venue string, tier models.VenueTier, oldLine, newLine float64, at time.Time) models.QuoteMoveEvent {
	return models.QuoteMoveEvent{
		EventID:     "ev1",
		Market:      "spreads",
		OutcomeName: "Team A",
		Venue:       venue,
		VenueTier:   tier,
		OldLine:     floatPtr(oldLine),
		NewLine:     floatPtr(newLine),
		Delta:       floatPtr(newLine - oldLine),
		Timestamp:   at,
	}
}

// TestPropagation_Adoption tests the core case: three quoting venues, two of
// them follow the origin's direction
func TestPropagation_Adoption(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewPropagationEngine(setup.store, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	originAt := now.Add(-3 * time.Minute)

	// All three venues at -3.0 inside the window, then pinnacle and
	// draftkings move to -3.5
	require.NoError(t, setup.store.InsertQuotes(setup.ctx, []models.Quote{
		quoteAt("pinnacle", floatPtr(-3.0), -110, originAt.Add(-30*time.Second)),
		quoteAt("draftkings", floatPtr(-3.0), -110, originAt.Add(-30*time.Second)),
		quoteAt("fanduel", floatPtr(-3.0), -110, originAt.Add(-30*time.Second)),
		quoteAt("pinnacle", floatPtr(-3.5), -110, originAt),
		quoteAt("draftkings", floatPtr(-3.5), -110, originAt.Add(time.Minute)),
	}))
	require.NoError(t, setup.store.InsertMoveEvents(setup.ctx, []models.QuoteMoveEvent{
		moveAt("pinnacle", models.TierSharp, -3.0, -3.5, originAt),
		moveAt("draftkings", models.TierRetail, -3.0, -3.5, originAt.Add(time.Minute)),
	}))

	commence := map[string]time.Time{"ev1": tipTime}
	events, err := engine.Detect(setup.ctx, now, commence)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "pinnacle", event.OriginVenue)
	assert.Equal(t, models.TierSharp, event.OriginTier)
	assert.InDelta(t, -0.5, event.OriginDelta, 1e-9)
	assert.Equal(t, 2, event.AdoptionCount)
	assert.Equal(t, 3, event.TotalVenues)
	assert.InDelta(t, 0.6667, event.AdoptionPercent, 1e-3)
	require.NotNil(t, event.MinutesToTip)
	assert.InDelta(t, 60.0, *event.MinutesToTip, 1e-9)

	// All venues sat at -3.0 before the origin moved, so the pre-origin
	// spread is exactly zero: the origin's own post-move quote at the origin
	// timestamp must not leak into it
	require.NotNil(t, event.DispersionBefore)
	assert.InDelta(t, 0.0, *event.DispersionBefore, 1e-9)
	require.NotNil(t, event.DispersionAfter)
	assert.InDelta(t, 0.2357, *event.DispersionAfter, 1e-3)

	persisted, err := setup.store.PropagationByEvent(setup.ctx, "ev1")
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

// TestPropagation_SingleMover tests that one venue moving alone never
// registers as propagation
func TestPropagation_SingleMover(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewPropagationEngine(setup.store, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	require.NoError(t, setup.store.InsertMoveEvents(setup.ctx, []models.QuoteMoveEvent{
		moveAt("pinnacle", models.TierSharp, -3.0, -3.5, now.Add(-time.Minute)),
	}))

	events, err := engine.Detect(setup.ctx, now, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// TestPropagation_OppositeDirections tests that a counter-move does not count
// as adoption
func TestPropagation_OppositeDirections(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewPropagationEngine(setup.store, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	require.NoError(t, setup.store.InsertMoveEvents(setup.ctx, []models.QuoteMoveEvent{
		moveAt("pinnacle", models.TierSharp, -3.0, -3.5, now.Add(-2*time.Minute)),
		moveAt("draftkings", models.TierRetail, -3.0, -2.5, now.Add(-time.Minute)),
	}))

	events, err := engine.Detect(setup.ctx, now, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// TestPropagation_StaleMovesIgnored tests the trailing window boundary
func TestPropagation_StaleMovesIgnored(t *testing.T) {
	setup := setupTestDetector(t)
	defer setup.cleanup()

	engine := NewPropagationEngine(setup.store, setup.cfg, zerolog.Nop())

	now := tipTime.Add(-time.Hour)
	stale := now.Add(-setup.cfg.PropagationWindow - time.Minute)
	require.NoError(t, setup.store.InsertMoveEvents(setup.ctx, []models.QuoteMoveEvent{
		moveAt("pinnacle", models.TierSharp, -3.0, -3.5, stale),
		moveAt("draftkings", models.TierRetail, -3.0, -3.5, stale.Add(time.Second)),
	}))

	events, err := engine.Detect(setup.ctx, now, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}
