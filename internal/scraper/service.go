package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucasvmx/amazon-price-watch/internal/browser"
	"github.com/lucasvmx/amazon-price-watch/internal/models"
	"github.com/lucasvmx/amazon-price-watch/internal/parser"
)

// Config tunes the extraction orchestrator.
type Config struct {
	// BaseURL is the marketplace root; product pages live at BaseURL/dp/ASIN.
	BaseURL string
	// NavigationTimeout bounds the initial page load.
	NavigationTimeout time.Duration
	// SettleDelay runs after DOMContentLoaded so client-side price and title
	// widgets have a chance to render.
	SettleDelay time.Duration
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://www.amazon.com.br",
		NavigationTimeout: 60 * time.Second,
		SettleDelay:       3 * time.Second,
		MaxRetries:        2,
		RetryDelay:        3 * time.Second,
	}
}

// Service drives one extraction at a time against the shared browser session:
// navigate, settle, resolve title, resolve price or availability, best-effort
// categories, assemble. Pages are always closed before a retry or return.
type Service struct {
	session Session
	cfg     Config
	logger  *slog.Logger
}

func NewService(session Session, cfg Config, logger *slog.Logger) *Service {
	if cfg.BaseURL == "" {
		cfg = DefaultConfig()
	}
	return &Service{
		session: session,
		cfg:     cfg,
		logger:  logger.With("component", "scraper"),
	}
}

// ExtractProduct retrieves the live product page for asin and yields a
// structured result or a classified failure. Navigation, selector and price
// format failures are retried with a fixed delay; session failures and
// anti-bot blocks propagate immediately.
func (s *Service) ExtractProduct(ctx context.Context, asin string) (*models.ScrapedProduct, error) {
	asin, err := models.NormalizeASIN(asin)
	if err != nil {
		return nil, err
	}

	if err := s.session.Ensure(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Info("retrying extraction", "asin", asin, "attempt", attempt+1, "error", lastErr)
			if err := sleepCtx(ctx, s.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}

		product, err := s.attempt(ctx, asin)
		if err == nil {
			return product, nil
		}
		lastErr = err

		var blocked *BlockedError
		if errors.As(err, &blocked) {
			// Retrying a block with the same session only digs the hole
			// deeper; let the caller decide on a cooldown.
			return nil, err
		}
		var sessErr *browser.SessionError
		if errors.As(err, &sessErr) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (s *Service) attempt(ctx context.Context, asin string) (result *models.ScrapedProduct, err error) {
	page, err := s.session.NewPage()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			s.logger.Warn("failed to close page", "asin", asin, "error", closeErr)
		}
	}()

	url := fmt.Sprintf("%s/dp/%s", s.cfg.BaseURL, asin)
	if err := page.Goto(url, s.cfg.NavigationTimeout); err != nil {
		return nil, err
	}

	if err := sleepCtx(ctx, s.cfg.SettleDelay); err != nil {
		return nil, err
	}

	title, err := s.extractTitle(page, asin)
	if err != nil {
		return nil, err
	}

	product := &models.ScrapedProduct{
		ASIN:      asin,
		Title:     title,
		Currency:  "BRL",
		ScrapedAt: time.Now(),
	}

	if err := s.extractPrice(page, product); err != nil {
		return nil, err
	}

	// Categories are optional metadata: a miss or even a page error here is
	// logged and swallowed, never fatal.
	s.extractCategories(page, product)

	return product, nil
}

func (s *Service) extractTitle(page Page, asin string) (string, error) {
	outcome, err := ResolveTitle(page)
	if err != nil {
		return "", err
	}
	if outcome.Found {
		s.logger.Debug("title resolved", "asin", asin, "strategy", outcome.StrategyID)
		return outcome.Value, nil
	}

	verdict, err := ClassifyPage(page)
	if err != nil {
		return "", err
	}
	if verdict.State == StateBlocked {
		return "", &BlockedError{Indicator: verdict.Indicator}
	}
	return "", &ExtractionError{Field: "title"}
}

func (s *Service) extractPrice(page Page, product *models.ScrapedProduct) error {
	outcome, err := ResolvePrice(page)
	if err != nil {
		return err
	}

	if !outcome.Found {
		verdict, err := ClassifyPage(page)
		if err != nil {
			return err
		}
		switch verdict.State {
		case StateBlocked:
			return &BlockedError{Indicator: verdict.Indicator}
		case StateUnavailable:
			product.Available = false
			product.Price = nil
			product.UnavailableReason = verdict.Reason
			s.logger.Info("product unavailable", "asin", product.ASIN, "reason", verdict.Reason)
			return nil
		default:
			return &ExtractionError{Field: "price"}
		}
	}

	price, err := parser.ParsePrice(outcome.Fragment)
	if err != nil {
		return err
	}

	product.Available = true
	product.Price = &price
	s.logger.Debug("price resolved", "asin", product.ASIN, "strategy", outcome.StrategyID, "price", price)
	return nil
}

func (s *Service) extractCategories(page Page, product *models.ScrapedProduct) {
	outcome, err := ResolveCategories(page)
	if err != nil {
		s.logger.Warn("category extraction failed", "asin", product.ASIN, "error", err)
		return
	}
	if !outcome.Found {
		return
	}
	product.Categories = outcome.Path
	s.logger.Debug("categories resolved", "asin", product.ASIN, "strategy", outcome.StrategyID, "depth", len(outcome.Path))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
