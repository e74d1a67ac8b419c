package browser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// SessionError wraps a browser/context launch failure. It is fatal for the
// current extraction and never retried internally.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session: %v", e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "pt-BR,pt;q=0.9,en;q=0.8",
		TimezoneID:     "America/Sao_Paulo",
		Locale:         "pt-BR",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

// Session owns the headless browser process and its single browsing context.
// The browser is launched lazily on first Ensure and relaunched after
// Shutdown. All extractions share the one context; each gets its own page.
type Session struct {
	opts   *Options
	logger *slog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
}

func NewSession(opts *Options) *Session {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Session{
		opts:   opts,
		logger: slog.Default().With("component", "browser"),
	}
}

// Ensure launches the browser and context if they are not already running.
// Safe for concurrent use; only one launch ever happens at a time.
func (s *Session) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.context != nil {
		return nil
	}
	return s.launchLocked()
}

// contextHeaders merges AcceptLanguage into the extra request headers so the
// configured language actually reaches the retailer.
func (o *Options) contextHeaders() map[string]string {
	headers := make(map[string]string, len(o.ExtraHeaders)+1)
	for k, v := range o.ExtraHeaders {
		headers[k] = v
	}
	if o.AcceptLanguage != "" {
		headers["Accept-Language"] = o.AcceptLanguage
	}
	return headers
}

func (s *Session) launchLocked() error {
	pw, err := playwright.Run()
	if err != nil {
		return &SessionError{Err: fmt.Errorf("failed to start playwright: %w", err)}
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &s.opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=1920,1080",
			"--user-agent=" + s.opts.UserAgent,
		},
	}

	if s.opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: s.opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return &SessionError{Err: fmt.Errorf("failed to launch browser: %w", err)}
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &s.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &s.opts.Locale,
		TimezoneId:        &s.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  s.opts.ViewportWidth,
			Height: s.opts.ViewportHeight,
		},
		ExtraHttpHeaders: s.opts.contextHeaders(),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return &SessionError{Err: fmt.Errorf("failed to create browser context: %w", err)}
	}

	s.pw = pw
	s.browser = browser
	s.context = context
	s.logger.Info("browser session started", "headless", s.opts.Headless, "locale", s.opts.Locale)

	return nil
}

// NewPage returns a fresh page from the shared context so DOM state never
// leaks between extraction attempts. Ensure must have succeeded first.
func (s *Session) NewPage() (playwright.Page, error) {
	s.mu.Lock()
	context := s.context
	s.mu.Unlock()

	if context == nil {
		return nil, &SessionError{Err: fmt.Errorf("session not started")}
	}

	page, err := context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(s.opts.Timeout.Milliseconds()))

	return page, nil
}

// Shutdown closes context then browser and resets the handles so a later
// Ensure can relaunch. Safe to call when nothing is open.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
		s.context = nil
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		s.browser = nil
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		s.pw = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	s.logger.Info("browser session stopped")
	return nil
}
