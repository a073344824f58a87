package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cypherlabdev/market-signals-service/internal/models"
	"github.com/cypherlabdev/market-signals-service/pkg/dynamics"
	"github.com/cypherlabdev/market-signals-service/pkg/scoring"
)

// SignalService exposes the derived-analytics outputs to the reporting
// surface and stamps conviction scores for the movement/steam detector
type SignalService struct {
	reader SignalReader
	logger zerolog.Logger
}

// NewSignalService creates a new signal service
func NewSignalService(reader SignalReader, logger zerolog.Logger) *SignalService {
	return &SignalService{
		reader: reader,
		logger: logger.With().Str("component", "signal_service").Logger(),
	}
}

// GetEventSignals returns all signals for an event
func (s *SignalService) GetEventSignals(ctx context.Context, eventID string) ([]*models.Signal, error) {
	signals, err := s.reader.SignalsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve signals for event: %w", err)
	}

	s.logger.Debug().
		Str("event_id", eventID).
		Int("count", len(signals)).
		Msg("retrieved signals by event")

	return signals, nil
}

// GetEventRegime returns regime snapshots for an event
func (s *SignalService) GetEventRegime(ctx context.Context, eventID string) ([]models.RegimeSnapshot, error) {
	snapshots, err := s.reader.RegimeSnapshotsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve regime snapshots for event: %w", err)
	}
	return snapshots, nil
}

// GetEventPropagation returns propagation events for an event
func (s *SignalService) GetEventPropagation(ctx context.Context, eventID string) ([]models.PropagationEvent, error) {
	events, err := s.reader.PropagationByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve propagation events for event: %w", err)
	}
	return events, nil
}

// GetEventClv returns CLV settlement records for an event
func (s *SignalService) GetEventClv(ctx context.Context, eventID string) ([]models.ClvRecord, error) {
	records, err := s.reader.ClvByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve clv records for event: %w", err)
	}
	return records, nil
}

// ScoreSignal stamps the composite conviction score and time bucket onto a
// signal. Called by the movement/steam detector, which owns signal creation
// for those types.
func (s *SignalService) ScoreSignal(sig *models.Signal, moveStrength, velocity float64, keyCross bool, minutesToTip *float64) int {
	bucket := dynamics.BucketOpen
	if minutesToTip != nil {
		bucket = dynamics.TimeBucket(*minutesToTip)
	}

	score := scoring.CompositeScore(moveStrength, velocity, keyCross, bucket)
	sig.StrengthScore = score
	bucketName := string(bucket)
	sig.TimeBucket = &bucketName
	if sig.Metadata == nil {
		sig.Metadata = models.JSONMap{}
	}
	sig.Metadata["composite_score"] = score

	return score
}
