package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lucasvmx/amazon-price-watch/internal/models"
)

// PriceObservation is one row of the append-only price history.
type PriceObservation struct {
	ID                uuid.UUID `json:"id"`
	ASIN              string    `json:"asin"`
	Title             string    `json:"title"`
	Price             *float64  `json:"price"`
	Currency          string    `json:"currency"`
	Available         bool      `json:"available"`
	UnavailableReason *string   `json:"unavailable_reason,omitempty"`
	Categories        []string  `json:"categories,omitempty"`
	ObservedAt        time.Time `json:"observed_at"`
}

// HistoryRepository persists extraction results. The extraction core ends at
// producing a ScrapedProduct; the append-or-skip decision lives here, on the
// persistence side of that boundary.
type HistoryRepository struct {
	db *DB
}

func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordObservation appends the result to the history when it changes the
// picture: first sighting, price moved, or availability flipped. Returns
// whether a row was appended.
func (r *HistoryRepository) RecordObservation(ctx context.Context, product *models.ScrapedProduct) (bool, error) {
	if problems := product.Validate(); len(problems) > 0 {
		return false, fmt.Errorf("refusing to record invalid observation: %v", problems)
	}

	latest, err := r.Latest(ctx, product.ASIN)
	if err != nil {
		return false, err
	}

	if !shouldAppend(latest, product) {
		return false, nil
	}

	obs := observationFromProduct(product)

	var categories []byte
	if len(obs.Categories) > 0 {
		categories, err = json.Marshal(obs.Categories)
		if err != nil {
			return false, fmt.Errorf("failed to marshal categories: %w", err)
		}
	}

	query := `
		INSERT INTO price_history
		(id, asin, title, price, currency, available, unavailable_reason, categories, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Exec(ctx, query,
		obs.ID, obs.ASIN, obs.Title, obs.Price, obs.Currency,
		obs.Available, obs.UnavailableReason, categories, obs.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert observation: %w", err)
	}

	return true, nil
}

// Latest returns the most recent observation for an ASIN, or nil when the
// product has never been seen.
func (r *HistoryRepository) Latest(ctx context.Context, asin string) (*PriceObservation, error) {
	query := `
		SELECT id, asin, title, price, currency, available, unavailable_reason, categories, observed_at
		FROM price_history
		WHERE asin = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`

	obs, err := scanObservation(r.db.QueryRow(ctx, query, asin))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}
	return obs, nil
}

// History lists observations for an ASIN, newest first.
func (r *HistoryRepository) History(ctx context.Context, asin string, limit int) ([]*PriceObservation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, asin, title, price, currency, available, unavailable_reason, categories, observed_at
		FROM price_history
		WHERE asin = $1
		ORDER BY observed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, asin, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var observations []*PriceObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return observations, nil
}

// shouldAppend decides whether a fresh extraction earns a history row.
func shouldAppend(latest *PriceObservation, next *models.ScrapedProduct) bool {
	if latest == nil {
		return true
	}
	if latest.Available != next.Available {
		return true
	}
	if latest.Price == nil && next.Price == nil {
		return false
	}
	if latest.Price == nil || next.Price == nil {
		return true
	}
	return *latest.Price != *next.Price
}

func observationFromProduct(product *models.ScrapedProduct) *PriceObservation {
	obs := &PriceObservation{
		ID:         uuid.New(),
		ASIN:       product.ASIN,
		Title:      product.Title,
		Price:      product.Price,
		Currency:   product.Currency,
		Available:  product.Available,
		Categories: product.Categories,
		ObservedAt: product.ScrapedAt,
	}
	if product.UnavailableReason != "" {
		reason := product.UnavailableReason
		obs.UnavailableReason = &reason
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}
	return obs
}

func scanObservation(row pgx.Row) (*PriceObservation, error) {
	obs := &PriceObservation{}
	var categories []byte

	err := row.Scan(
		&obs.ID, &obs.ASIN, &obs.Title, &obs.Price, &obs.Currency,
		&obs.Available, &obs.UnavailableReason, &categories, &obs.ObservedAt)
	if err != nil {
		return nil, err
	}

	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &obs.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}

	return obs, nil
}
