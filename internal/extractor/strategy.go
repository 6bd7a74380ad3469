package extractor

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Strategy looks up one field in a parsed page. It reports false when the field is not there.
type Strategy func(doc *goquery.Document) (string, bool)

// FirstOf runs strategies in order and returns the first value found.
func FirstOf(doc *goquery.Document, strategies []Strategy) (string, bool) {
	for _, s := range strategies {
		if v, ok := s(doc); ok {
			return v, true
		}
	}
	return "", false
}

// TextOf returns the trimmed text of the first element matching selector.
func TextOf(selector string) Strategy {
	return func(doc *goquery.Document) (string, bool) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		text := strings.TrimSpace(sel.Text())
		return text, text != ""
	}
}

// PriceOf parses the first element matching selector as a price.
func PriceOf(selector string) Strategy {
	return func(doc *goquery.Document) (string, bool) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		return ParsePrice(sel.Text())
	}
}

// DetailsTableValue finds the first row of the table whose header contains label
// (case-sensitive) and whose value is longer than two characters.
func DetailsTableValue(tableSelector, label string) Strategy {
	return func(doc *goquery.Document) (string, bool) {
		table := doc.Find(tableSelector).First()
		if table.Length() == 0 {
			return "", false
		}
		var value string
		table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			header := row.Find("th").First()
			if header.Length() == 0 || !strings.Contains(header.Text(), label) {
				return true
			}
			v := strings.TrimSpace(row.Find("td").First().Text())
			if len(v) > 2 {
				value = v
				return false
			}
			return true
		})
		return value, value != ""
	}
}

// BoldLabelValue finds a <b> node whose normalized text is one of labels and returns
// the rest of its parent's text. A matching label counts as found even if no value follows it.
func BoldLabelValue(labels ...string) Strategy {
	accepted := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		accepted[normalizeLabel(l)] = struct{}{}
	}
	return func(doc *goquery.Document) (string, bool) {
		var (
			value string
			found bool
		)
		doc.Find("b").EachWithBreak(func(_ int, b *goquery.Selection) bool {
			labelText := b.Text()
			if _, ok := accepted[normalizeLabel(labelText)]; !ok {
				return true
			}
			found = true
			value = strings.TrimSpace(strings.Replace(b.Parent().Text(), labelText, "", 1))
			return false
		})
		return value, found
	}
}

// normalizeLabel lower-cases s and drops all whitespace, so "ASIN: " and "asin:" compare equal.
func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// ParsePrice strips the dollar sign, thousands separators and whitespace, parses the rest
// as a decimal and formats it as a dollar amount with two decimals. Other currencies fail.
func ParsePrice(raw string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '$' || r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return "", false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return "", false
	}
	return "$" + strconv.FormatFloat(v, 'f', 2, 64), true
}

// TitleFromURL derives a title from the path segment right before delimiter,
// e.g. "Widget-Deluxe" for https://www.amazon.com/Widget-Deluxe/dp/B000X.
func TitleFromURL(rawURL, delimiter string) (string, bool) {
	if delimiter == "" {
		return "", false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	before, _, ok := strings.Cut(u.Path, delimiter)
	if !ok {
		return "", false
	}
	segment := strings.Trim(before, "/")
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	segment = strings.TrimSpace(segment)
	return segment, segment != ""
}

// IsDigits reports whether s is non-empty and made of ASCII digits only.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
