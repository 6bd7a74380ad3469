// Package extractor turns archived product page markup into model.Product values.
package extractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/IliaW/product-scrape-worker/internal/model"
	"github.com/PuerkitoBio/goquery"
)

var (
	ErrNotProduct = errors.New("not a product")
	ErrIncomplete = errors.New("incomplete product")
)

const (
	problemNoTitle       = "could not find title"
	problemNoPrice       = "could not find valid price"
	warnInvalidRating    = "invalid rating format"
	warnNoRating         = "rating not found"
	warnNoSourceID       = "source id not found"
	warnTitleFromURL     = "title derived from url"
	problemUnparsableDoc = "unparsable markup"
)

// ExtractError carries every problem collected while extracting a single page.
type ExtractError struct {
	Kind     error
	Problems []string
}

func (e *ExtractError) Error() string {
	if len(e.Problems) == 0 || errors.Is(e.Kind, ErrNotProduct) {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Problems, "; "))
}

func (e *ExtractError) Unwrap() error {
	return e.Kind
}

// ProductExtractor is implemented by Extractor.
type ProductExtractor interface {
	Extract(html, sourceURL string) (*model.Product, []string, error)
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct {
	market *Marketplace
}

func New(market *Marketplace) *Extractor {
	if market == nil {
		market = Amazon
	}
	return &Extractor{market: market}
}

// Classify reports whether doc is a product page and returns the candidate source identifier.
func (e *Extractor) Classify(doc *goquery.Document) (string, bool) {
	return FirstOf(doc, e.market.Classifiers)
}

// Extract returns the product described by html together with non-fatal warnings.
// A page that is not a product page or lacks a required field yields an *ExtractError
// and no product.
func (e *Extractor) Extract(html, sourceURL string) (*model.Product, []string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, &ExtractError{Kind: ErrNotProduct, Problems: []string{problemUnparsableDoc}}
	}

	sourceID, ok := e.Classify(doc)
	if !ok {
		return nil, nil, &ExtractError{Kind: ErrNotProduct, Problems: []string{ErrNotProduct.Error()}}
	}

	var (
		problems []string
		warnings []string
		product  = &model.Product{}
	)
	product.SetURL(sourceURL)

	if title, ok := FirstOf(doc, e.market.Title); ok {
		product.SetTitle(title)
	} else if title, ok := TitleFromURL(sourceURL, e.market.URLTitleDelimiter); ok {
		product.SetTitle(title)
		warnings = append(warnings, warnTitleFromURL)
	} else {
		problems = append(problems, problemNoTitle)
	}

	if price, ok := FirstOf(doc, e.market.Price); ok {
		product.SetPrice(price)
	} else {
		problems = append(problems, problemNoPrice)
	}

	product.SetSourceID(sourceID)
	if product.SourceID == "" {
		warnings = append(warnings, warnNoSourceID)
	}

	if e.market.Rating != nil {
		if raw, ok := e.market.Rating(doc); ok {
			token := strings.ReplaceAll(strings.Fields(raw)[0], ",", "")
			if IsDigits(token) {
				product.SetRating(token)
			} else {
				warnings = append(warnings, warnInvalidRating)
			}
		} else {
			warnings = append(warnings, warnNoRating)
		}
	}

	if !product.Complete() {
		return nil, nil, &ExtractError{Kind: ErrIncomplete, Problems: append(problems, warnings...)}
	}

	return product, warnings, nil
}
