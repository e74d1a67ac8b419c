package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lucasvmx/amazon-price-watch/internal/database"
	"github.com/lucasvmx/amazon-price-watch/internal/models"
)

type EventType string

const (
	// EventTypePriceObserved is published whenever a new observation is
	// appended to the price history.
	EventTypePriceObserved EventType = "PRICE_OBSERVED"
)

// PriceObservedPayload is the event body consumers read off the stream.
type PriceObservedPayload struct {
	EventID           string    `json:"event_id"`
	EventType         string    `json:"event_type"`
	Timestamp         time.Time `json:"timestamp"`
	ASIN              string    `json:"asin"`
	Title             string    `json:"title"`
	Price             *float64  `json:"price"`
	Currency          string    `json:"currency"`
	Available         bool      `json:"available"`
	UnavailableReason string    `json:"unavailable_reason,omitempty"`
	Categories        []string  `json:"categories,omitempty"`
	ObservedAt        time.Time `json:"observed_at"`
	Source            string    `json:"source"`
}

// Publisher writes price events through the transactional outbox so they are
// only ever visible for observations that actually committed.
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishPriceObserved enqueues a PRICE_OBSERVED event for the relay.
func (p *Publisher) PublishPriceObserved(ctx context.Context, product *models.ScrapedProduct) error {
	payload := &PriceObservedPayload{
		EventID:           uuid.New().String(),
		EventType:         string(EventTypePriceObserved),
		Timestamp:         time.Now(),
		ASIN:              product.ASIN,
		Title:             product.Title,
		Price:             product.Price,
		Currency:          product.Currency,
		Available:         product.Available,
		UnavailableReason: product.UnavailableReason,
		Categories:        product.Categories,
		ObservedAt:        product.ScrapedAt,
		Source:            "price-watch",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "product",
		AggregateID:   product.ASIN,
		EventType:     string(EventTypePriceObserved),
		Payload:       data,
		TargetStream:  database.DefaultObservationStream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"event_type", outboxEvent.EventType,
		"asin", product.ASIN)

	return nil
}
