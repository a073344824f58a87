package models

import (
	"time"
)

// VenueTier classifies a quoting source by how informative its prices are
type VenueTier string

const (
	TierSharp    VenueTier = "sharp"
	TierRetail   VenueTier = "retail"
	TierOffshore VenueTier = "offshore"
)

// Quote represents a single venue's price for one outcome at one fetch cycle.
// Produced by the upstream ingestion service; this service never writes quotes
// outside of batch persistence. Unique per (key, venue, fetch time) so a
// redelivered batch collides instead of duplicating history.
type Quote struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	EventID     string    `gorm:"uniqueIndex:idx_quotes_key" json:"event_id"`
	Market      string    `gorm:"uniqueIndex:idx_quotes_key" json:"market"`
	OutcomeName string    `gorm:"uniqueIndex:idx_quotes_key" json:"outcome_name"`
	Venue       string    `gorm:"uniqueIndex:idx_quotes_key" json:"venue"`
	Line        *float64  `json:"line,omitempty"` // nil for h2h markets
	Price       int       `json:"price"`          // American odds
	FetchedAt   time.Time `gorm:"uniqueIndex:idx_quotes_key" json:"fetched_at"`
}

// ConsensusPoint is the multi-venue baseline for one outcome at one fetch
// cycle. The latest row per (event, market, outcome) is selected by max
// fetched_at.
type ConsensusPoint struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	EventID        string    `gorm:"index:idx_consensus_key" json:"event_id"`
	Market         string    `gorm:"index:idx_consensus_key" json:"market"`
	OutcomeName    string    `gorm:"index:idx_consensus_key" json:"outcome_name"`
	ConsensusLine  *float64  `json:"consensus_line,omitempty"`
	ConsensusPrice *int      `json:"consensus_price,omitempty"`
	Dispersion     *float64  `json:"dispersion,omitempty"`
	BooksCount     int       `json:"books_count"`
	FetchedAt      time.Time `gorm:"index" json:"fetched_at"`
}

// Event holds commence-time metadata for a sporting event
type Event struct {
	EventID      string    `gorm:"primaryKey" json:"event_id"`
	Sport        string    `json:"sport"`
	HomeTeam     string    `json:"home_team"`
	AwayTeam     string    `json:"away_team"`
	CommenceTime time.Time `gorm:"index" json:"commence_time"`
}

// QuoteMoveEvent records one venue changing its line or price relative to its
// immediately preceding quote for the same key. Append-only; unique per
// (key, venue, timestamp) so a replayed cycle cannot double-record a move.
type QuoteMoveEvent struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	EventID      string    `gorm:"uniqueIndex:idx_moves_key" json:"event_id"`
	Market       string    `gorm:"uniqueIndex:idx_moves_key" json:"market"`
	OutcomeName  string    `gorm:"uniqueIndex:idx_moves_key" json:"outcome_name"`
	Venue        string    `gorm:"uniqueIndex:idx_moves_key" json:"venue"`
	VenueTier    VenueTier `json:"venue_tier"`
	OldLine      *float64  `json:"old_line,omitempty"`
	NewLine      *float64  `json:"new_line,omitempty"`
	Delta        *float64  `json:"delta,omitempty"`
	OldPrice     *int      `json:"old_price,omitempty"`
	NewPrice     *int      `json:"new_price,omitempty"`
	PriceDelta   *int      `json:"price_delta,omitempty"`
	Timestamp    time.Time `gorm:"index;uniqueIndex:idx_moves_key" json:"timestamp"`
	MinutesToTip *float64  `json:"minutes_to_tip,omitempty"`
}

// PropagationEvent records one venue's move being adopted across the market
// within the trailing window. Append-only.
type PropagationEvent struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	EventID          string    `gorm:"index" json:"event_id"`
	MarketKey        string    `json:"market_key"`
	OutcomeName      string    `json:"outcome_name"`
	OriginVenue      string    `json:"origin_venue"`
	OriginTier       VenueTier `json:"origin_tier"`
	OriginDelta      float64   `json:"origin_delta"`
	OriginTimestamp  time.Time `json:"origin_timestamp"`
	AdoptionPercent  float64   `json:"adoption_percent"`
	AdoptionCount    int       `json:"adoption_count"`
	TotalVenues      int       `json:"total_venues"`
	DispersionBefore *float64  `json:"dispersion_before,omitempty"`
	DispersionAfter  *float64  `json:"dispersion_after,omitempty"`
	MinutesToTip     *float64  `json:"minutes_to_tip,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RegimeSnapshot is one HMM classification pass for an (event, market) pair.
// Append-only, never upserted.
type RegimeSnapshot struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	EventID           string    `gorm:"index" json:"event_id"`
	Market            string    `json:"market"`
	RegimeLabel       string    `json:"regime_label"`
	RegimeProbability float64   `json:"regime_probability"`
	TransitionRisk    float64   `json:"transition_risk"`
	StabilityScore    float64   `json:"stability_score"`
	ModelVersion      string    `json:"model_version"`
	SnapshotsUsed     int       `json:"snapshots_used"`
	CreatedAt         time.Time `json:"created_at"`
}

// ClosingConsensus is the frozen post-commence baseline for one outcome.
// Unique per (event, market, outcome); recomputation overwrites.
type ClosingConsensus struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	EventID      string    `gorm:"uniqueIndex:idx_closing_key" json:"event_id"`
	Market       string    `gorm:"uniqueIndex:idx_closing_key" json:"market"`
	OutcomeName  string    `gorm:"uniqueIndex:idx_closing_key" json:"outcome_name"`
	ClosingLine  *float64  `json:"closing_line,omitempty"`
	ClosingPrice *int      `json:"closing_price,omitempty"`
	Dispersion   *float64  `json:"dispersion,omitempty"`
	BooksCount   int       `json:"books_count"`
	CapturedAt   time.Time `json:"captured_at"`
}

// QuoteBatchMessage is the Kafka payload published by the upstream
// ingestion/consensus service once per polling cycle
type QuoteBatchMessage struct {
	BatchID   string           `json:"batch_id"`
	Timestamp time.Time        `json:"timestamp"`
	Events    []Event          `json:"events"`
	Quotes    []Quote          `json:"quotes"`
	Consensus []ConsensusPoint `json:"consensus"`
}
