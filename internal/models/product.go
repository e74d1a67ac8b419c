package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// ErrInvalidASIN marks identifiers that fail normalization.
var ErrInvalidASIN = errors.New("invalid ASIN")

// ScrapedProduct is the result of one extraction against a product page.
// Available=false implies Price=nil; the two are never set independently.
type ScrapedProduct struct {
	ASIN              string    `json:"asin"`
	Title             string    `json:"title"`
	Price             *float64  `json:"price"`
	Currency          string    `json:"currency"`
	Available         bool      `json:"available"`
	UnavailableReason string    `json:"unavailable_reason,omitempty"`
	Categories        []string  `json:"categories,omitempty"`
	ScrapedAt         time.Time `json:"scraped_at"`
}

// NormalizeASIN uppercases and validates a raw ASIN.
func NormalizeASIN(raw string) (string, error) {
	asin := strings.ToUpper(strings.TrimSpace(raw))
	if !asinPattern.MatchString(asin) {
		return "", fmt.Errorf("%w %q: must be 10 alphanumeric characters", ErrInvalidASIN, raw)
	}
	return asin, nil
}

// Validate checks the structural invariants of an extraction result.
func (p *ScrapedProduct) Validate() []string {
	var problems []string

	if !asinPattern.MatchString(p.ASIN) {
		problems = append(problems, "invalid ASIN")
	}
	if strings.TrimSpace(p.Title) == "" {
		problems = append(problems, "title is required")
	}
	if p.Available && p.Price == nil {
		problems = append(problems, "available product must carry a price")
	}
	if !p.Available && p.Price != nil {
		problems = append(problems, "unavailable product must not carry a price")
	}
	if p.Price != nil && *p.Price < 0 {
		problems = append(problems, "price must be non-negative")
	}

	return problems
}
