package scraper

import (
	"errors"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/lucasvmx/amazon-price-watch/internal/browser"
)

// Page is the slice of browser-page capability the extraction chains need:
// wait for a selector to become visible, read text without a visibility
// requirement (offscreen accessibility spans), run a script against the live
// DOM, and snapshot the rendered HTML. Keeping it narrow lets tests drive the
// chains with a fake page instead of a real browser.
type Page interface {
	Goto(url string, timeout time.Duration) error
	WaitForText(selector string, timeout time.Duration) (string, bool, error)
	TextContent(selector string) (string, bool, error)
	Evaluate(script string) (any, error)
	Content() (string, error)
	Close() error
}

// Session abstracts the browser session manager so the orchestrator can be
// exercised with a fake session in tests.
type Session interface {
	Ensure() error
	NewPage() (Page, error)
}

type playwrightSession struct {
	session *browser.Session
}

// NewPlaywrightSession wraps the shared browser session for use by a Service.
func NewPlaywrightSession(s *browser.Session) Session {
	return &playwrightSession{session: s}
}

func (ps *playwrightSession) Ensure() error {
	return ps.session.Ensure()
}

func (ps *playwrightSession) NewPage() (Page, error) {
	page, err := ps.session.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page}, nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	// DOMContentLoaded is enough: the page keeps loading ads and trackers
	// indefinitely, so waiting for network idle never terminates.
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	return nil
}

func (p *playwrightPage) WaitForText(selector string, timeout time.Duration) (string, bool, error) {
	locator := p.page.Locator(selector).First()

	err := locator.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		// Timeout here means the strategy did not match and the chain moves
		// on. Anything else (closed page, dead transport) is a real error.
		if isWaitTimeout(err) {
			return "", false, nil
		}
		return "", false, err
	}

	text, err := locator.TextContent()
	if err != nil {
		return "", false, err
	}

	text = strings.TrimSpace(text)
	return text, text != "", nil
}

func isWaitTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout)
}

func (p *playwrightPage) TextContent(selector string) (string, bool, error) {
	locator := p.page.Locator(selector).First()

	count, err := locator.Count()
	if err != nil {
		return "", false, err
	}
	if count == 0 {
		return "", false, nil
	}

	text, err := locator.TextContent()
	if err != nil {
		return "", false, err
	}

	text = strings.TrimSpace(text)
	return text, text != "", nil
}

func (p *playwrightPage) Evaluate(script string) (any, error) {
	return p.page.Evaluate(script)
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
