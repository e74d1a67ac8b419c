package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageState classifies what kind of page we are actually looking at when the
// happy-path selectors come up empty.
type PageState int

const (
	// StateOK means no special condition was detected; the caller treats the
	// original extraction miss as an unexplained failure (stale selectors,
	// partial render) and may retry.
	StateOK PageState = iota
	// StateBlocked means an anti-bot or captcha wall.
	StateBlocked
	// StateUnavailable means the product page loaded but the item is out of
	// stock or removed.
	StateUnavailable
)

// Verdict is the classifier's judgment of a page snapshot.
type Verdict struct {
	State     PageState
	Reason    string
	Indicator string
}

// Block walls show up in English or Portuguese depending on which edge served
// the request.
var blockIndicators = []string{
	"captcha",
	"enter the characters you see below",
	"digite os caracteres",
	"not a robot",
	"não é um robô",
	"robot check",
	"verifique sua identidade",
	"verify you're a human",
	"automated access",
}

var unavailableIndicators = []string{
	"currently unavailable",
	"não disponível",
	"indisponível",
	"fora de estoque",
	"este item não pode ser enviado",
}

// Selectors Amazon uses for the availability message, most specific first.
var availabilitySelectors = []string{
	"#availability span",
	"#availability .a-color-state",
	"#outOfStock .a-color-price",
	"#outOfStock span",
}

// ClassifyPage inspects a snapshot of the rendered page and decides between
// blocked, unavailable and ok. It runs only after primary extraction failed,
// so the answer steers retry-vs-record-vs-surface.
func ClassifyPage(p Page) (Verdict, error) {
	html, err := p.Content()
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to snapshot page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to parse page snapshot: %w", err)
	}

	bodyText := strings.ToLower(doc.Find("body").Text())

	for _, indicator := range blockIndicators {
		if strings.Contains(bodyText, indicator) {
			return Verdict{State: StateBlocked, Indicator: indicator}, nil
		}
	}

	for _, selector := range availabilitySelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		for _, indicator := range unavailableIndicators {
			if strings.Contains(lower, indicator) {
				return Verdict{State: StateUnavailable, Reason: text, Indicator: indicator}, nil
			}
		}
	}

	// Also catch unavailability phrasing outside the known selectors;
	// removed listings sometimes render it in a bare notice box.
	for _, indicator := range unavailableIndicators {
		if strings.Contains(bodyText, indicator) {
			return Verdict{State: StateUnavailable, Reason: indicator, Indicator: indicator}, nil
		}
	}

	return Verdict{State: StateOK}, nil
}
