package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasvmx/amazon-price-watch/internal/models"
)

type stubHistory struct {
	appended bool
	err      error
	calls    int
}

func (s *stubHistory) RecordObservation(ctx context.Context, p *models.ScrapedProduct) (bool, error) {
	s.calls++
	return s.appended, s.err
}

type stubPublisher struct {
	err   error
	calls int
}

func (s *stubPublisher) PublishPriceObserved(ctx context.Context, p *models.ScrapedProduct) error {
	s.calls++
	return s.err
}

func testProduct() *models.ScrapedProduct {
	price := 89.90
	return &models.ScrapedProduct{
		ASIN:      "B000TEST02",
		Title:     "Produto",
		Price:     &price,
		Currency:  "BRL",
		Available: true,
		ScrapedAt: time.Now(),
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordingStorePublishesOnAppend(t *testing.T) {
	history := &stubHistory{appended: true}
	publisher := &stubPublisher{}
	store := NewRecordingStore(history, publisher, discard())

	appended, err := store.RecordObservation(context.Background(), testProduct())
	require.NoError(t, err)
	assert.True(t, appended)
	assert.Equal(t, 1, publisher.calls)
}

func TestRecordingStoreSkipsPublishWhenNotAppended(t *testing.T) {
	history := &stubHistory{appended: false}
	publisher := &stubPublisher{}
	store := NewRecordingStore(history, publisher, discard())

	appended, err := store.RecordObservation(context.Background(), testProduct())
	require.NoError(t, err)
	assert.False(t, appended)
	assert.Zero(t, publisher.calls)
}

func TestRecordingStorePublishFailureDoesNotFailRecord(t *testing.T) {
	history := &stubHistory{appended: true}
	publisher := &stubPublisher{err: errors.New("outbox down")}
	store := NewRecordingStore(history, publisher, discard())

	appended, err := store.RecordObservation(context.Background(), testProduct())
	require.NoError(t, err)
	assert.True(t, appended)
}

func TestRecordingStoreHistoryErrorPropagates(t *testing.T) {
	history := &stubHistory{err: errors.New("db down")}
	publisher := &stubPublisher{}
	store := NewRecordingStore(history, publisher, discard())

	_, err := store.RecordObservation(context.Background(), testProduct())
	require.Error(t, err)
	assert.Zero(t, publisher.calls)
}
