package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cypherlabdev/market-signals-service/internal/models"
)

const insertBatchSize = 200

// Store is the ordered relational store for quotes, consensus points and all
// derived signal records
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to SQLite at path (":memory:" supported) and migrates the
// schema
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Event{},
		&models.Quote{},
		&models.ConsensusPoint{},
		&models.QuoteMoveEvent{},
		&models.PropagationEvent{},
		&models.Signal{},
		&models.RegimeSnapshot{},
		&models.ClosingConsensus{},
		&models.ClvRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Ingest
// ======================================================================================

// UpsertEvents persists event metadata, overwriting commence times on change
func (s *Store) UpsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		UpdateAll: true,
	}).CreateInBatches(events, insertBatchSize).Error
}

// InsertQuotes appends a batch of venue quotes. Rows already present from a
// redelivered batch are dropped rather than duplicated.
func (s *Store) InsertQuotes(ctx context.Context, quotes []models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).CreateInBatches(quotes, insertBatchSize).Error
}

// InsertConsensus appends a batch of consensus points
func (s *Store) InsertConsensus(ctx context.Context, points []models.ConsensusPoint) error {
	if len(points) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(points, insertBatchSize).Error
}

// CommenceTimes returns the commence-time map for the given events
func (s *Store) CommenceTimes(ctx context.Context, eventIDs []string) (map[string]time.Time, error) {
	if len(eventIDs) == 0 {
		return map[string]time.Time{}, nil
	}
	var events []models.Event
	if err := s.db.WithContext(ctx).Where("event_id IN ?", eventIDs).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	commence := make(map[string]time.Time, len(events))
	for _, e := range events {
		commence[e.EventID] = e.CommenceTime
	}
	return commence, nil
}

// ======================================================================================
// Quote move ledger
// ======================================================================================

// PreviousQuote returns the most recent quote for the key strictly older than
// before, or nil when this is the first observation
func (s *Store) PreviousQuote(ctx context.Context, eventID, market, outcome, venue string, before time.Time) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND market = ? AND outcome_name = ? AND venue = ? AND fetched_at < ?",
			eventID, market, outcome, venue, before).
		Order("fetched_at DESC").
		First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query previous quote: %w", err)
	}
	return &quote, nil
}

// InsertMoveEvents appends move events in one batch. A replayed cycle
// re-derives the same moves; collisions on the dedupe key are dropped.
func (s *Store) InsertMoveEvents(ctx context.Context, moves []models.QuoteMoveEvent) error {
	if len(moves) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).CreateInBatches(moves, insertBatchSize).Error
}

// MoveEventsSince returns move events with a known line delta on or after
// since, oldest first
func (s *Store) MoveEventsSince(ctx context.Context, since time.Time) ([]models.QuoteMoveEvent, error) {
	var moves []models.QuoteMoveEvent
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND delta IS NOT NULL", since).
		Order("timestamp ASC").
		Find(&moves).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query move events: %w", err)
	}
	return moves, nil
}

// ======================================================================================
// Consensus lookups
// ======================================================================================

// LatestConsensus returns the freshest consensus point for the key, or nil
// when none exists
func (s *Store) LatestConsensus(ctx context.Context, eventID, market, outcome string) (*models.ConsensusPoint, error) {
	var point models.ConsensusPoint
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND market = ? AND outcome_name = ?", eventID, market, outcome).
		Order("fetched_at DESC").
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query consensus: %w", err)
	}
	return &point, nil
}

// LatestConsensusAt returns the freshest consensus point at or before cutoff,
// or nil when none exists
func (s *Store) LatestConsensusAt(ctx context.Context, eventID, market, outcome string, cutoff time.Time) (*models.ConsensusPoint, error) {
	var point models.ConsensusPoint
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND market = ? AND outcome_name = ? AND fetched_at <= ?",
			eventID, market, outcome, cutoff).
		Order("fetched_at DESC").
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query consensus at cutoff: %w", err)
	}
	return &point, nil
}

// ConsensusSince returns consensus points for the events on or after since,
// oldest first
func (s *Store) ConsensusSince(ctx context.Context, eventIDs []string, since time.Time) ([]models.ConsensusPoint, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var points []models.ConsensusPoint
	err := s.db.WithContext(ctx).
		Where("event_id IN ? AND fetched_at >= ?", eventIDs, since).
		Order("fetched_at ASC").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query consensus history: %w", err)
	}
	return points, nil
}

// ConsensusKey identifies one (market, outcome) pair within an event
type ConsensusKey struct {
	Market      string
	OutcomeName string
}

// DistinctConsensusKeys returns the distinct (market, outcome) pairs that
// have consensus history for an event
func (s *Store) DistinctConsensusKeys(ctx context.Context, eventID string) ([]ConsensusKey, error) {
	var keys []ConsensusKey
	err := s.db.WithContext(ctx).
		Model(&models.ConsensusPoint{}).
		Distinct("market", "outcome_name").
		Where("event_id = ?", eventID).
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query consensus keys: %w", err)
	}
	return keys, nil
}

// ======================================================================================
// Propagation
// ======================================================================================

// QuotesBetween returns all quotes for the key in [from, to], oldest first
func (s *Store) QuotesBetween(ctx context.Context, eventID, market, outcome string, from, to time.Time) ([]models.Quote, error) {
	var quotes []models.Quote
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND market = ? AND outcome_name = ? AND fetched_at >= ? AND fetched_at <= ?",
			eventID, market, outcome, from, to).
		Order("fetched_at ASC").
		Find(&quotes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes in window: %w", err)
	}
	return quotes, nil
}

// QuotesBefore returns all quotes for the key in [from, to), oldest first.
// The exclusive upper bound keeps rows written at exactly `to` out, so a
// pre-move window never sees the move itself.
func (s *Store) QuotesBefore(ctx context.Context, eventID, market, outcome string, from, to time.Time) ([]models.Quote, error) {
	var quotes []models.Quote
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND market = ? AND outcome_name = ? AND fetched_at >= ? AND fetched_at < ?",
			eventID, market, outcome, from, to).
		Order("fetched_at ASC").
		Find(&quotes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes before cutoff: %w", err)
	}
	return quotes, nil
}

// InsertPropagationEvents appends propagation events in one batch
func (s *Store) InsertPropagationEvents(ctx context.Context, events []models.PropagationEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(events, insertBatchSize).Error
}

// PropagationByEvent returns propagation events for one event, newest first
func (s *Store) PropagationByEvent(ctx context.Context, eventID string) ([]models.PropagationEvent, error) {
	var events []models.PropagationEvent
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query propagation events: %w", err)
	}
	return events, nil
}

// ======================================================================================
// Signals
// ======================================================================================

// InsertSignals appends signals in one batch
func (s *Store) InsertSignals(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(signals, insertBatchSize).Error
}

// SaveSignalMetadata persists metadata and score mutations for the given
// signals in a single transaction
func (s *Store) SaveSignalMetadata(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sig := range signals {
			err := tx.Model(&models.Signal{}).
				Where("id = ?", sig.ID).
				Updates(map[string]interface{}{
					"metadata":       sig.Metadata,
					"strength_score": sig.StrengthScore,
					"time_bucket":    sig.TimeBucket,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SignalsByEvent returns all signals for one event, newest first
func (s *Store) SignalsByEvent(ctx context.Context, eventID string) ([]*models.Signal, error) {
	var signals []*models.Signal
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return signals, nil
}

// ======================================================================================
// Regime
// ======================================================================================

// InsertRegimeSnapshots appends regime snapshots in one batch
func (s *Store) InsertRegimeSnapshots(ctx context.Context, snapshots []models.RegimeSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(snapshots, insertBatchSize).Error
}

// RegimeSnapshotsByEvent returns regime snapshots for one event, newest first
func (s *Store) RegimeSnapshotsByEvent(ctx context.Context, eventID string) ([]models.RegimeSnapshot, error) {
	var snapshots []models.RegimeSnapshot
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query regime snapshots: %w", err)
	}
	return snapshots, nil
}

// ======================================================================================
// Closing / CLV
// ======================================================================================

// EventsCommencedBetween returns events whose commence time falls in
// [from, to], i.e. games that have started within the settlement horizon
func (s *Store) EventsCommencedBetween(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("commence_time >= ? AND commence_time <= ?", from, to).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query commenced events: %w", err)
	}
	return events, nil
}

// UpsertClosingConsensus writes frozen closing baselines, overwriting any
// prior freeze for the same key
func (s *Store) UpsertClosingConsensus(ctx context.Context, closes []models.ClosingConsensus) error {
	if len(closes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "event_id"}, {Name: "market"}, {Name: "outcome_name"},
		},
		UpdateAll: true,
	}).CreateInBatches(closes, insertBatchSize).Error
}

// ClosingConsensusFor returns the frozen closing baseline for the key, or nil
func (s *Store) ClosingConsensusFor(ctx context.Context, eventID, market, outcome string) (*models.ClosingConsensus, error) {
	var closing models.ClosingConsensus
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND market = ? AND outcome_name = ?", eventID, market, outcome).
		First(&closing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query closing consensus: %w", err)
	}
	return &closing, nil
}

// UnsettledSignals returns signals for the events that have no CLV record yet
func (s *Store) UnsettledSignals(ctx context.Context, eventIDs []string) ([]*models.Signal, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var signals []*models.Signal
	err := s.db.WithContext(ctx).
		Joins("LEFT JOIN clv_records ON clv_records.signal_id = signals.id").
		Where("clv_records.id IS NULL AND signals.event_id IN ?", eventIDs).
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled signals: %w", err)
	}
	return signals, nil
}

// InsertClvRecords appends CLV records in one batch. Conflicting signal IDs
// are dropped rather than updated: settlement is write-once.
func (s *Store) InsertClvRecords(ctx context.Context, records []models.ClvRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signal_id"}},
		DoNothing: true,
	}).CreateInBatches(records, insertBatchSize).Error
}

// ClvByEvent returns CLV records for one event, newest first
func (s *Store) ClvByEvent(ctx context.Context, eventID string) ([]models.ClvRecord, error) {
	var records []models.ClvRecord
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("settled_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query clv records: %w", err)
	}
	return records, nil
}
