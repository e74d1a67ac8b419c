package scraper

import "fmt"

// NavigationError indicates the product page failed to load within its
// timeout. Retried per the orchestrator's retry policy.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError indicates every selector strategy for a field was
// exhausted with no block or unavailability explanation.
type ExtractionError struct {
	Field string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s not found", e.Field)
}

// BlockedError indicates the page is an anti-bot wall. It propagates
// distinctly and is never retried: hammering a block only entrenches it.
type BlockedError struct {
	Indicator string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by anti-bot check (matched %q)", e.Indicator)
}
