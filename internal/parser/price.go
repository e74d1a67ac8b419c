package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrPriceFormat indicates a price fragment could not be reduced to a finite number.
var ErrPriceFormat = errors.New("unparseable price format")

// Fragment holds raw price text as it appears in the page DOM. Amazon renders
// the price either as a single localized offscreen string ("R$ 1.234,56") or
// split across two spans: a whole part that may keep a trailing decorative
// comma ("1.498,") and a fraction part ("33"). Exactly one shape is populated.
type Fragment struct {
	Offscreen string
	Whole     string
	Fraction  string
}

// OffscreenFragment wraps a single localized price string.
func OffscreenFragment(text string) Fragment {
	return Fragment{Offscreen: text}
}

// SplitFragment wraps a whole/fraction span pair.
func SplitFragment(whole, fraction string) Fragment {
	return Fragment{Whole: whole, Fraction: fraction}
}

var (
	// Numeric run inside a localized price string, pt-BR separators.
	// Covers both grouped ("1.498,33") and ungrouped ("1498,33") forms.
	offscreenRun = regexp.MustCompile(`\d+(?:\.\d{3})*(?:,\d{1,2})?`)
	nonDigit     = regexp.MustCompile(`[^\d]`)
	wholeJunk    = regexp.MustCompile(`[^\d,.]`)
)

// ParsePrice converts a Fragment to a numeric value under pt-BR formatting
// rules: "." is the thousands separator, "," the decimal separator. Both
// fragment shapes normalize to the same result.
func ParsePrice(f Fragment) (float64, error) {
	if f.Offscreen != "" {
		return parseOffscreen(f.Offscreen)
	}
	return parseSplit(f.Whole, f.Fraction)
}

func parseOffscreen(text string) (float64, error) {
	run := offscreenRun.FindString(text)
	if run == "" {
		return 0, fmt.Errorf("%w: no digits in %q", ErrPriceFormat, text)
	}

	run = strings.ReplaceAll(run, ".", "")
	run = strings.Replace(run, ",", ".", 1)

	return finish(run, text)
}

func parseSplit(whole, fraction string) (float64, error) {
	w := wholeJunk.ReplaceAllString(whole, "")
	w = strings.TrimSuffix(w, ",")
	w = strings.ReplaceAll(w, ".", "")

	if w == "" {
		return 0, fmt.Errorf("%w: no digits in whole part %q", ErrPriceFormat, whole)
	}

	fr := nonDigit.ReplaceAllString(fraction, "")
	if fr == "" {
		fr = "00"
	}

	return finish(w+"."+fr, whole+fraction)
}

func finish(normalized, original string) (float64, error) {
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrPriceFormat, original)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("%w: %q is not a finite price", ErrPriceFormat, original)
	}
	return math.Round(value*100) / 100, nil
}
