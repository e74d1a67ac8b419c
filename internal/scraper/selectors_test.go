package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasvmx/amazon-price-watch/internal/parser"
)

func TestResolveTitleFirstStrategyWins(t *testing.T) {
	page := &fakePage{texts: map[string]string{
		"#productTitle":        "Mouse Sem Fio Logitech",
		"h1.a-size-large span": "should not be reached",
	}}

	outcome, err := ResolveTitle(page)
	require.NoError(t, err)
	assert.True(t, outcome.Found)
	assert.Equal(t, "Mouse Sem Fio Logitech", outcome.Value)
	assert.Equal(t, "title-id", outcome.StrategyID)
}

func TestResolveTitleFallsThroughToLaterStrategy(t *testing.T) {
	// Only the third-priority selector matches; the chain must still land on
	// it instead of reporting a miss.
	page := &fakePage{texts: map[string]string{
		"#title span": "Teclado Mecânico",
	}}

	outcome, err := ResolveTitle(page)
	require.NoError(t, err)
	assert.True(t, outcome.Found)
	assert.Equal(t, "Teclado Mecânico", outcome.Value)
	assert.Equal(t, "title-span", outcome.StrategyID)
}

func TestResolveTitleExhaustedIsNotAnError(t *testing.T) {
	page := &fakePage{}

	outcome, err := ResolveTitle(page)
	require.NoError(t, err)
	assert.False(t, outcome.Found)
}

func TestResolvePriceProminentBlockWins(t *testing.T) {
	page := &fakePage{
		evals: map[string]any{
			ScriptProminentPrice: map[string]any{
				"offscreen": "R$ 199,90",
				"whole":     "199,",
				"fraction":  "90",
			},
		},
		texts: map[string]string{
			"#corePriceDisplay_desktop_feature_div .a-offscreen": "R$ 999,99",
		},
	}

	outcome, err := ResolvePrice(page)
	require.NoError(t, err)
	require.True(t, outcome.Found)
	assert.Equal(t, "price-apex-prominent", outcome.StrategyID)

	price, err := parser.ParsePrice(outcome.Fragment)
	require.NoError(t, err)
	assert.Equal(t, 199.90, price)
}

func TestResolvePriceProminentPrefersOffscreenOverSplit(t *testing.T) {
	page := &fakePage{evals: map[string]any{
		ScriptProminentPrice: map[string]any{
			"offscreen": "R$ 1.234,56",
			"whole":     "1.234,",
			"fraction":  "56",
		},
	}}

	outcome, err := ResolvePrice(page)
	require.NoError(t, err)
	require.True(t, outcome.Found)
	assert.Equal(t, "R$ 1.234,56", outcome.Fragment.Offscreen)
}

func TestResolvePriceCoreDisplaySplitFallback(t *testing.T) {
	page := &fakePage{texts: map[string]string{
		"#corePriceDisplay_desktop_feature_div .a-price-whole":    "1.498,",
		"#corePriceDisplay_desktop_feature_div .a-price-fraction": "33",
	}}

	outcome, err := ResolvePrice(page)
	require.NoError(t, err)
	require.True(t, outcome.Found)
	assert.Equal(t, "price-core-display", outcome.StrategyID)

	price, err := parser.ParsePrice(outcome.Fragment)
	require.NoError(t, err)
	assert.Equal(t, 1498.33, price)
}

func TestResolvePriceLastResortOffscreen(t *testing.T) {
	page := &fakePage{texts: map[string]string{
		".a-price .a-offscreen": "R$ 42,00",
	}}

	outcome, err := ResolvePrice(page)
	require.NoError(t, err)
	require.True(t, outcome.Found)
	assert.Equal(t, "price-any-offscreen", outcome.StrategyID)
}

func TestResolvePriceExhaustedIsNotAnError(t *testing.T) {
	page := &fakePage{}

	outcome, err := ResolvePrice(page)
	require.NoError(t, err)
	assert.False(t, outcome.Found)
}

func TestResolveCategoriesSkipsHomeLink(t *testing.T) {
	page := &fakePage{evals: map[string]any{
		ScriptBreadcrumbs: []any{"Início", "Eletrônicos", "Computadores", "Mouses"},
	}}

	outcome, err := ResolveCategories(page)
	require.NoError(t, err)
	require.True(t, outcome.Found)
	assert.Equal(t, []string{"Eletrônicos", "Computadores", "Mouses"}, outcome.Path)
	assert.Equal(t, "category-breadcrumbs", outcome.StrategyID)
}

func TestResolveCategoriesDetailsRowFallback(t *testing.T) {
	page := &fakePage{evals: map[string]any{
		ScriptCategoryRow: "Eletrônicos > Computadores e Informática",
	}}

	outcome, err := ResolveCategories(page)
	require.NoError(t, err)
	require.True(t, outcome.Found)
	assert.Equal(t, []string{"Eletrônicos", "Computadores e Informática"}, outcome.Path)
}

func TestResolveCategoriesMetaTagDelimiters(t *testing.T) {
	page := &fakePage{evals: map[string]any{
		ScriptMetaCategory: "Eletrônicos|Acessórios|Cabos",
	}}

	outcome, err := ResolveCategories(page)
	require.NoError(t, err)
	require.True(t, outcome.Found)
	assert.Equal(t, []string{"Eletrônicos", "Acessórios", "Cabos"}, outcome.Path)
	assert.Equal(t, "category-meta-tag", outcome.StrategyID)
}

func TestResolveCategoriesAbsent(t *testing.T) {
	page := &fakePage{}

	outcome, err := ResolveCategories(page)
	require.NoError(t, err)
	assert.False(t, outcome.Found)
}
