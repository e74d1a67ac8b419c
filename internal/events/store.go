package events

import (
	"context"
	"log/slog"

	"github.com/lucasvmx/amazon-price-watch/internal/models"
)

// HistoryStore is the persistence half of recording an observation.
type HistoryStore interface {
	RecordObservation(ctx context.Context, product *models.ScrapedProduct) (bool, error)
}

// ObservationPublisher is the eventing half.
type ObservationPublisher interface {
	PublishPriceObserved(ctx context.Context, product *models.ScrapedProduct) error
}

// RecordingStore appends an observation to the history and, when a row was
// actually appended, publishes the matching event. A publish failure is
// logged but does not undo the recorded observation.
type RecordingStore struct {
	history   HistoryStore
	publisher ObservationPublisher
	logger    *slog.Logger
}

func NewRecordingStore(history HistoryStore, publisher ObservationPublisher, logger *slog.Logger) *RecordingStore {
	return &RecordingStore{
		history:   history,
		publisher: publisher,
		logger:    logger.With("component", "recording_store"),
	}
}

func (s *RecordingStore) RecordObservation(ctx context.Context, product *models.ScrapedProduct) (bool, error) {
	appended, err := s.history.RecordObservation(ctx, product)
	if err != nil {
		return false, err
	}
	if !appended {
		return false, nil
	}

	if s.publisher != nil {
		if err := s.publisher.PublishPriceObserved(ctx, product); err != nil {
			s.logger.Error("failed to publish observation event", "asin", product.ASIN, "error", err)
		}
	}

	return true, nil
}
