package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		BaseURL:           "https://www.amazon.com.br",
		NavigationTimeout: time.Second,
		SettleDelay:       0,
		MaxRetries:        2,
		RetryDelay:        time.Millisecond,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractProductHappyPath(t *testing.T) {
	page := &fakePage{
		texts: map[string]string{
			"#productTitle": "Wireless Mouse",
		},
		evals: map[string]any{
			ScriptProminentPrice: map[string]any{"offscreen": "R$ 89,90"},
			ScriptBreadcrumbs:    []any{"Início", "Electronics", "Computers", "Mice"},
		},
	}
	session := &fakeSession{pages: []*fakePage{page}}
	svc := NewService(session, testConfig(), testLogger())

	product, err := svc.ExtractProduct(context.Background(), "b08n5wrwnw")
	require.NoError(t, err)

	assert.Equal(t, "B08N5WRWNW", product.ASIN)
	assert.Equal(t, "Wireless Mouse", product.Title)
	require.NotNil(t, product.Price)
	assert.Equal(t, 89.90, *product.Price)
	assert.True(t, product.Available)
	assert.Equal(t, "BRL", product.Currency)
	assert.Equal(t, []string{"Electronics", "Computers", "Mice"}, product.Categories)
	assert.Empty(t, product.Validate())
	assert.True(t, page.closed)
	assert.Equal(t, 1, session.opened)
}

func TestExtractProductUnavailable(t *testing.T) {
	page := &fakePage{
		texts: map[string]string{
			"#productTitle": "Produto Raro",
		},
		html: `<html><body><div id="availability"><span>Currently unavailable</span></div></body></html>`,
	}
	session := &fakeSession{pages: []*fakePage{page}}
	svc := NewService(session, testConfig(), testLogger())

	product, err := svc.ExtractProduct(context.Background(), "B000000001")
	require.NoError(t, err)

	assert.False(t, product.Available)
	assert.Nil(t, product.Price)
	assert.Equal(t, "Currently unavailable", product.UnavailableReason)
	assert.Empty(t, product.Validate())
}

func TestExtractProductBlockedNotRetried(t *testing.T) {
	page := &fakePage{
		html: `<html><body><p>Enter the characters you see below</p></body></html>`,
	}
	session := &fakeSession{pages: []*fakePage{page}}
	svc := NewService(session, testConfig(), testLogger())

	_, err := svc.ExtractProduct(context.Background(), "B000000002")

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, 1, session.opened, "a block must not be retried")
	assert.True(t, page.closed)
}

func TestExtractProductRetryBound(t *testing.T) {
	// Navigation fails every attempt: initial try plus MaxRetries retries,
	// then the final error propagates.
	failing := &fakePage{gotoErr: &NavigationError{URL: "x", Err: errors.New("timeout")}}
	session := &fakeSession{pages: []*fakePage{failing}}
	svc := NewService(session, testConfig(), testLogger())

	_, err := svc.ExtractProduct(context.Background(), "B000000003")

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, 3, session.opened)
}

func TestExtractProductRecoversOnRetry(t *testing.T) {
	broken := &fakePage{} // no title, ordinary page -> ExtractionError, retried
	working := &fakePage{
		texts: map[string]string{"#productTitle": "Cabo USB-C"},
		evals: map[string]any{
			ScriptProminentPrice: map[string]any{"offscreen": "R$ 29,90"},
		},
	}
	session := &fakeSession{pages: []*fakePage{broken, working}}
	svc := NewService(session, testConfig(), testLogger())

	product, err := svc.ExtractProduct(context.Background(), "B000000004")
	require.NoError(t, err)
	assert.Equal(t, "Cabo USB-C", product.Title)
	assert.Equal(t, 2, session.opened)
	assert.True(t, broken.closed)
	assert.True(t, working.closed)
}

func TestExtractProductTitleMissingClassifiesExtraction(t *testing.T) {
	page := &fakePage{html: `<html><body><p>nothing useful</p></body></html>`}
	session := &fakeSession{pages: []*fakePage{page}}
	svc := NewService(session, testConfig(), testLogger())

	_, err := svc.ExtractProduct(context.Background(), "B000000005")

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "title", exErr.Field)
}

func TestExtractProductInvalidASIN(t *testing.T) {
	session := &fakeSession{pages: []*fakePage{{}}}
	svc := NewService(session, testConfig(), testLogger())

	_, err := svc.ExtractProduct(context.Background(), "not-an-asin")
	require.Error(t, err)
	assert.Equal(t, 0, session.opened)
}

func TestExtractProductCategoryFailureIsSwallowed(t *testing.T) {
	page := &fakePage{
		texts: map[string]string{"#productTitle": "Fone de Ouvido"},
		evals: map[string]any{
			ScriptProminentPrice: map[string]any{"offscreen": "R$ 149,00"},
			// no breadcrumb, details row or meta answers at all
		},
	}
	session := &fakeSession{pages: []*fakePage{page}}
	svc := NewService(session, testConfig(), testLogger())

	product, err := svc.ExtractProduct(context.Background(), "B000000006")
	require.NoError(t, err)
	assert.Nil(t, product.Categories)
	assert.True(t, product.Available)
}

func TestExtractProductContextCancelled(t *testing.T) {
	failing := &fakePage{gotoErr: &NavigationError{URL: "x", Err: errors.New("timeout")}}
	session := &fakeSession{pages: []*fakePage{failing}}
	cfg := testConfig()
	cfg.RetryDelay = time.Minute
	svc := NewService(session, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ExtractProduct(ctx, "B000000007")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
