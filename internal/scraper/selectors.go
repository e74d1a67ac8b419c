package scraper

import (
	"strings"
	"time"

	"github.com/lucasvmx/amazon-price-watch/internal/parser"
)

// Outcome is the result of resolving one logical field against the page.
// Exhausting every strategy yields Found=false; it is never an error.
type Outcome struct {
	Found      bool
	Value      string
	StrategyID string
}

// Each field is resolved by an ordered list of strategies, most reliable
// first. Earlier strategies get longer visibility timeouts because they are
// the ones most likely to match; fallbacks run short so the worst-case total
// wait stays bounded. Amazon renders different DOM shapes depending on
// session, locale and AB-test bucket, so no single selector is dependable.
type textStrategy struct {
	id      string
	resolve func(p Page) (string, bool, error)
}

var titleStrategies = []textStrategy{
	{
		id: "title-id",
		resolve: func(p Page) (string, bool, error) {
			return p.WaitForText("#productTitle", 10*time.Second)
		},
	},
	{
		id: "title-heading-class",
		resolve: func(p Page) (string, bool, error) {
			return p.WaitForText("h1.a-size-large span", 5*time.Second)
		},
	},
	{
		id: "title-span",
		resolve: func(p Page) (string, bool, error) {
			return p.WaitForText("#title span", 3*time.Second)
		},
	},
	{
		id: "title-aria",
		resolve: func(p Page) (string, bool, error) {
			return p.WaitForText(`h1[aria-label*="produto"]`, 2*time.Second)
		},
	},
}

// ResolveTitle walks the title strategy chain; first success wins.
func ResolveTitle(p Page) (Outcome, error) {
	for _, st := range titleStrategies {
		text, found, err := st.resolve(p)
		if err != nil {
			return Outcome{}, err
		}
		if found {
			return Outcome{Found: true, Value: text, StrategyID: st.id}, nil
		}
	}
	return Outcome{}, nil
}

// ScriptProminentPrice runs in the page and picks, among the price blocks in
// the buy area, the one with the largest rendered font size. When a
// payment-method discount sits next to the list price, the visually dominant
// element is the price the customer actually sees; strikethrough list prices
// (a-text-price) are excluded outright. Best-effort heuristic, not a
// guarantee.
const ScriptProminentPrice = `() => {
	const root = document.querySelector('#apex_desktop') || document.querySelector('#corePrice_feature_div');
	if (!root) return null;
	const candidates = Array.from(root.querySelectorAll('.a-price'))
		.filter(el => !el.classList.contains('a-text-price'));
	if (candidates.length === 0) return null;
	let best = null, bestSize = -1;
	for (const el of candidates) {
		const probe = el.querySelector('.a-price-whole') || el;
		const size = parseFloat(window.getComputedStyle(probe).fontSize) || 0;
		if (size > bestSize) { bestSize = size; best = el; }
	}
	const pick = sel => { const n = best.querySelector(sel); return n ? n.textContent : ''; };
	return {
		offscreen: pick('.a-offscreen'),
		whole: pick('.a-price-whole'),
		fraction: pick('.a-price-fraction'),
	};
}`

// PriceOutcome carries the raw fragment a price strategy produced; parsing
// happens in the orchestrator so a malformed fragment classifies as a price
// format failure, not a selector miss.
type PriceOutcome struct {
	Found      bool
	Fragment   parser.Fragment
	StrategyID string
}

type priceStrategy struct {
	id      string
	resolve func(p Page) (parser.Fragment, bool, error)
}

var priceStrategies = []priceStrategy{
	{
		// Buy-box price block, most prominent candidate by font size.
		id:      "price-apex-prominent",
		resolve: resolveProminentPrice,
	},
	{
		// Core price display container: offscreen localized string first,
		// then the visible whole/fraction split.
		id: "price-core-display",
		resolve: func(p Page) (parser.Fragment, bool, error) {
			return resolveScopedPrice(p, "#corePriceDisplay_desktop_feature_div", 5*time.Second)
		},
	},
	{
		// Any visible whole/fraction pair on the page.
		id: "price-any-split",
		resolve: func(p Page) (parser.Fragment, bool, error) {
			whole, found, err := p.WaitForText(".a-price-whole", 3*time.Second)
			if err != nil || !found {
				return parser.Fragment{}, false, err
			}
			fraction, _, err := p.TextContent(".a-price-fraction")
			if err != nil {
				return parser.Fragment{}, false, err
			}
			return parser.SplitFragment(whole, fraction), true, nil
		},
	},
	{
		// Last resort: any offscreen price text anywhere on the page.
		id: "price-any-offscreen",
		resolve: func(p Page) (parser.Fragment, bool, error) {
			text, found, err := p.TextContent(".a-price .a-offscreen")
			if err != nil || !found {
				return parser.Fragment{}, false, err
			}
			return parser.OffscreenFragment(text), true, nil
		},
	},
}

func resolveProminentPrice(p Page) (parser.Fragment, bool, error) {
	result, err := p.Evaluate(ScriptProminentPrice)
	if err != nil {
		return parser.Fragment{}, false, err
	}

	picked, ok := result.(map[string]any)
	if !ok {
		return parser.Fragment{}, false, nil
	}

	offscreen := strings.TrimSpace(stringField(picked, "offscreen"))
	if offscreen != "" {
		return parser.OffscreenFragment(offscreen), true, nil
	}

	whole := strings.TrimSpace(stringField(picked, "whole"))
	if whole != "" {
		return parser.SplitFragment(whole, stringField(picked, "fraction")), true, nil
	}

	return parser.Fragment{}, false, nil
}

func resolveScopedPrice(p Page, scope string, timeout time.Duration) (parser.Fragment, bool, error) {
	offscreen, found, err := p.TextContent(scope + " .a-offscreen")
	if err != nil {
		return parser.Fragment{}, false, err
	}
	if found {
		return parser.OffscreenFragment(offscreen), true, nil
	}

	whole, found, err := p.WaitForText(scope+" .a-price-whole", timeout)
	if err != nil || !found {
		return parser.Fragment{}, false, err
	}

	fraction, _, err := p.TextContent(scope + " .a-price-fraction")
	if err != nil {
		return parser.Fragment{}, false, err
	}

	return parser.SplitFragment(whole, fraction), true, nil
}

// ResolvePrice walks the price strategy chain; first fragment wins.
func ResolvePrice(p Page) (PriceOutcome, error) {
	for _, st := range priceStrategies {
		fragment, found, err := st.resolve(p)
		if err != nil {
			return PriceOutcome{}, err
		}
		if found {
			return PriceOutcome{Found: true, Fragment: fragment, StrategyID: st.id}, nil
		}
	}
	return PriceOutcome{}, nil
}

// ScriptBreadcrumbs collects the breadcrumb trail texts root-to-leaf.
const ScriptBreadcrumbs = `() => {
	const links = Array.from(document.querySelectorAll('#wayfinding-breadcrumbs_feature_div ul a'));
	return links.map(a => a.textContent.trim()).filter(t => t.length > 0);
}`

// ScriptCategoryRow pulls the category/department value out of the product
// details table, matching the label in either Portuguese or English.
const ScriptCategoryRow = `() => {
	const rows = document.querySelectorAll('#productDetails_detailBullets_sections1 tr, #detailBulletsWrapper_feature_div li');
	for (const row of rows) {
		const labelNode = row.querySelector('th, .a-text-bold');
		const label = labelNode ? labelNode.textContent.toLowerCase() : '';
		if (label.includes('categoria') || label.includes('category') ||
			label.includes('departamento') || label.includes('department')) {
			const value = row.querySelector('td, span:not(.a-text-bold)');
			if (value) return value.textContent.trim();
		}
	}
	return '';
}`

// ScriptMetaCategory reads the product:category meta tag content.
const ScriptMetaCategory = `() => {
	const meta = document.querySelector('meta[property="product:category"]');
	return meta ? (meta.getAttribute('content') || '') : '';
}`

// CategoryOutcome is the breadcrumb path, root to leaf.
type CategoryOutcome struct {
	Found      bool
	Path       []string
	StrategyID string
}

// ResolveCategories tries breadcrumbs, then the details table, then the
// category meta tag. Callers treat a miss as absent metadata, never a failure.
func ResolveCategories(p Page) (CategoryOutcome, error) {
	result, err := p.Evaluate(ScriptBreadcrumbs)
	if err != nil {
		return CategoryOutcome{}, err
	}
	if path := stringSlice(result); len(path) > 1 {
		// The first breadcrumb link is the storefront home link, not a
		// category.
		return CategoryOutcome{Found: true, Path: path[1:], StrategyID: "category-breadcrumbs"}, nil
	}

	result, err = p.Evaluate(ScriptCategoryRow)
	if err != nil {
		return CategoryOutcome{}, err
	}
	if text, ok := result.(string); ok && strings.TrimSpace(text) != "" {
		return CategoryOutcome{Found: true, Path: splitCategoryPath(text), StrategyID: "category-details-row"}, nil
	}

	result, err = p.Evaluate(ScriptMetaCategory)
	if err != nil {
		return CategoryOutcome{}, err
	}
	if text, ok := result.(string); ok && strings.TrimSpace(text) != "" {
		return CategoryOutcome{Found: true, Path: splitCategoryPath(text), StrategyID: "category-meta-tag"}, nil
	}

	return CategoryOutcome{}, nil
}

// splitCategoryPath breaks a single category string on the delimiters Amazon
// uses in details rows and meta tags (colon, pipe, angle bracket).
func splitCategoryPath(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ':' || r == '|' || r == '>'
	})

	var path []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			path = append(path, trimmed)
		}
	}
	return path
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
