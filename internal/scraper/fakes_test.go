package scraper

import (
	"time"
)

// fakePage answers selector and script lookups from fixture maps so the
// strategy chains and the orchestrator can run without a browser.
type fakePage struct {
	texts   map[string]string
	evals   map[string]any
	html    string
	gotoErr error
	waitErr error
	closed  bool
}

func (f *fakePage) Goto(url string, _ time.Duration) error {
	if f.gotoErr != nil {
		return f.gotoErr
	}
	return nil
}

func (f *fakePage) WaitForText(selector string, _ time.Duration) (string, bool, error) {
	if f.waitErr != nil {
		return "", false, f.waitErr
	}
	text, ok := f.texts[selector]
	return text, ok && text != "", nil
}

func (f *fakePage) TextContent(selector string) (string, bool, error) {
	text, ok := f.texts[selector]
	return text, ok && text != "", nil
}

func (f *fakePage) Evaluate(script string) (any, error) {
	return f.evals[script], nil
}

func (f *fakePage) Content() (string, error) {
	return f.html, nil
}

func (f *fakePage) Close() error {
	f.closed = true
	return nil
}

// fakeSession hands out one fake page per extraction attempt and counts them.
type fakeSession struct {
	pages     []*fakePage
	opened    int
	ensureErr error
}

func (f *fakeSession) Ensure() error {
	return f.ensureErr
}

func (f *fakeSession) NewPage() (Page, error) {
	idx := f.opened
	if idx >= len(f.pages) {
		idx = len(f.pages) - 1
	}
	f.opened++
	return f.pages[idx], nil
}
