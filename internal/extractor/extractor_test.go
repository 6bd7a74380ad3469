package extractor

import (
	"errors"
	"strings"
	"testing"

	"github.com/IliaW/product-scrape-worker/internal/model"
	"github.com/PuerkitoBio/goquery"
)

const widgetURL = "https://www.amazon.com/Widget/dp/B000X"

func detailsTable(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<table id="productDetails_detailBullets_sections1">`)
	for i := 0; i+1 < len(rows); i += 2 {
		b.WriteString("<tr><th>" + rows[i] + "</th><td>" + rows[i+1] + "</td></tr>")
	}
	b.WriteString("</table>")
	return b.String()
}

func page(parts ...string) string {
	return "<html><head><title>x</title></head><body>" + strings.Join(parts, "\n") + "</body></html>"
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestExtractWidgetScenario(t *testing.T) {
	html := page(
		detailsTable(" Product Dimensions ", "1 x 2 x 3 inches", " ASIN ", " B000X1234 "),
		`<span id="productTitle">  Widget Deluxe  </span>`,
		`<span id="priceblock_ourprice">$19.99</span>`,
		`<span id="acrCustomerReviewText">1,024 ratings</span>`,
	)

	product, warnings, err := New(Amazon).Extract(html, widgetURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := model.Product{
		URL:      widgetURL,
		Title:    "Widget Deluxe",
		Price:    "$19.99",
		SourceID: "B000X1234",
		Rating:   "1024",
	}
	if *product != want {
		t.Fatalf("got %+v, want %+v", *product, want)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestExtractNotProduct(t *testing.T) {
	html := page(
		`<span id="productTitle">Widget Deluxe</span>`,
		`<span id="priceblock_ourprice">$19.99</span>`,
	)

	product, _, err := New(Amazon).Extract(html, widgetURL)
	if product != nil {
		t.Fatalf("expected no product, got %+v", product)
	}
	if !errors.Is(err, ErrNotProduct) {
		t.Fatalf("err = %v, want ErrNotProduct", err)
	}
	var extractErr *ExtractError
	if !errors.As(err, &extractErr) || len(extractErr.Problems) != 1 {
		t.Fatalf("expected a single problem, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		wantID string
		wantOK bool
	}{
		{
			name:   "details table",
			html:   page(detailsTable("ASIN", "B00FROANTC")),
			wantID: "B00FROANTC",
			wantOK: true,
		},
		{
			name:   "details table value too short",
			html:   page(detailsTable("ASIN", "B0")),
			wantOK: false,
		},
		{
			name:   "details table label is case sensitive",
			html:   page(detailsTable("asin", "B00FROANTC")),
			wantOK: false,
		},
		{
			name:   "first qualifying row wins",
			html:   page(detailsTable("ASIN", "-", "ASIN", "B00FIRST00", "ASIN", "B00SECOND0")),
			wantID: "B00FIRST00",
			wantOK: true,
		},
		{
			name:   "bold label",
			html:   page(`<ul><li><b>ASIN:</b> B00BOLD123</li></ul>`),
			wantID: "B00BOLD123",
			wantOK: true,
		},
		{
			name:   "bold label trailing space",
			html:   page(`<li><b>ASIN: </b>B00BOLD123</li>`),
			wantID: "B00BOLD123",
			wantOK: true,
		},
		{
			name:   "bold label lower case",
			html:   page(`<li><b>asin:</b> B00BOLD123</li>`),
			wantID: "B00BOLD123",
			wantOK: true,
		},
		{
			name:   "bold label with odd whitespace",
			html:   page("<li><b>\n  Asin :\t</b> B00BOLD123 </li>"),
			wantID: "B00BOLD123",
			wantOK: true,
		},
		{
			name:   "bold label without colon",
			html:   page(`<li><b>ASIN</b> B00BOLD123</li>`),
			wantOK: false,
		},
		{
			name:   "bold label without value",
			html:   page(`<li><b>ASIN:</b></li>`),
			wantID: "",
			wantOK: true,
		},
		{
			name:   "other bold text",
			html:   page(`<li><b>Brand:</b> Acme</li>`),
			wantOK: false,
		},
		{
			name:   "table is tried before bold label",
			html:   page(detailsTable("ASIN", "B00TABLE00"), `<li><b>ASIN:</b> B00BOLD123</li>`),
			wantID: "B00TABLE00",
			wantOK: true,
		},
	}

	e := New(Amazon)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := e.Classify(parse(t, tt.html))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Fatalf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	e := New(Amazon)
	html := page(`<li><b>ASIN:</b> B00BOLD123</li>`)
	doc := parse(t, html)

	firstID, firstOK := e.Classify(doc)
	for i := 0; i < 3; i++ {
		id, ok := e.Classify(doc)
		if id != firstID || ok != firstOK {
			t.Fatalf("run %d: got (%q, %v), want (%q, %v)", i, id, ok, firstID, firstOK)
		}
		id, ok = e.Classify(parse(t, html))
		if id != firstID || ok != firstOK {
			t.Fatalf("reparsed run %d: got (%q, %v), want (%q, %v)", i, id, ok, firstID, firstOK)
		}
	}
}

func TestExtractTitleFallbacks(t *testing.T) {
	asin := detailsTable("ASIN", "B000X1234")
	price := `<span id="priceblock_ourprice">$5.00</span>`

	tests := []struct {
		name        string
		html        string
		url         string
		wantTitle   string
		wantWarning string
		wantErr     bool
	}{
		{
			name:      "primary title",
			html:      page(asin, price, `<span id="productTitle">Primary</span>`, `<span id="btAsinTitle">Legacy</span>`),
			url:       widgetURL,
			wantTitle: "Primary",
		},
		{
			name:      "legacy title",
			html:      page(asin, price, `<span id="btAsinTitle">Legacy</span>`),
			url:       widgetURL,
			wantTitle: "Legacy",
		},
		{
			name:        "url fallback",
			html:        page(asin, price),
			url:         "https://www.amazon.com/100-Wisconsin-CHEDDAR-CHEESE-Packages/dp/B00FROANTC",
			wantTitle:   "100-Wisconsin-CHEDDAR-CHEESE-Packages",
			wantWarning: warnTitleFromURL,
		},
		{
			name:    "unusable url",
			html:    page(asin, price),
			url:     "https://www.amazon.com/gp/product/B00FROANTC",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, warnings, err := New(Amazon).Extract(tt.html, tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrIncomplete) {
					t.Fatalf("err = %v, want ErrIncomplete", err)
				}
				if !strings.Contains(err.Error(), problemNoTitle) {
					t.Fatalf("err = %v, want it to mention the title", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if product.Title != tt.wantTitle {
				t.Fatalf("title = %q, want %q", product.Title, tt.wantTitle)
			}
			if tt.wantWarning != "" && !contains(warnings, tt.wantWarning) {
				t.Fatalf("warnings = %v, want %q", warnings, tt.wantWarning)
			}
		})
	}
}

func TestExtractPriceOrder(t *testing.T) {
	asin := detailsTable("ASIN", "B000X1234")
	title := `<span id="productTitle">Widget</span>`

	tests := []struct {
		name      string
		prices    []string
		wantPrice string
		wantErr   bool
	}{
		{
			name: "sale price wins over offscreen",
			prices: []string{
				`<span class="a-offscreen">$99.00</span>`,
				`<span id="priceblock_saleprice">$12.50</span>`,
			},
			wantPrice: "$12.50",
		},
		{
			name:      "offscreen only",
			prices:    []string{`<span class="a-offscreen">$7.25</span>`},
			wantPrice: "$7.25",
		},
		{
			name: "our price before deal price",
			prices: []string{
				`<span id="priceblock_dealprice">$3.00</span>`,
				`<span id="priceblock_ourprice">$4.00</span>`,
			},
			wantPrice: "$4.00",
		},
		{
			name: "unparsable candidate falls through",
			prices: []string{
				`<span id="priceblock_saleprice">Currently unavailable</span>`,
				`<span class="a-price-whole">1,299.</span>`,
			},
			wantPrice: "$1299.00",
		},
		{
			name: "non dollar currency falls through",
			prices: []string{
				`<span id="priceblock_ourprice">€ 8,50</span>`,
				`<span class="a-offscreen">$9.10</span>`,
			},
			wantPrice: "$9.10",
		},
		{
			name:    "non dollar currency only",
			prices:  []string{`<span id="priceblock_ourprice">€ 8,50</span>`},
			wantErr: true,
		},
		{
			name:    "no candidate parses",
			prices:  []string{`<span id="priceblock_ourprice">See price in cart</span>`},
			wantErr: true,
		},
		{
			name:    "no candidate at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := page(append([]string{asin, title}, tt.prices...)...)
			product, _, err := New(Amazon).Extract(html, widgetURL)
			if tt.wantErr {
				if !errors.Is(err, ErrIncomplete) || !strings.Contains(err.Error(), problemNoPrice) {
					t.Fatalf("err = %v, want incomplete with price problem", err)
				}
				if product != nil {
					t.Fatalf("partial product must be discarded")
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if product.Price != tt.wantPrice {
				t.Fatalf("price = %q, want %q", product.Price, tt.wantPrice)
			}
		})
	}
}

func TestExtractRating(t *testing.T) {
	base := []string{
		detailsTable("ASIN", "B000X1234"),
		`<span id="productTitle">Widget</span>`,
		`<span id="priceblock_ourprice">$5.00</span>`,
	}

	tests := []struct {
		name        string
		rating      string
		wantRating  string
		wantWarning string
	}{
		{name: "count with separator", rating: `<span id="acrCustomerReviewText">12,345 customer reviews</span>`, wantRating: "12345"},
		{name: "plain count", rating: `<span id="acrCustomerReviewText"> 7 ratings</span>`, wantRating: "7"},
		{name: "not a number", rating: `<span id="acrCustomerReviewText">No reviews</span>`, wantWarning: warnInvalidRating},
		{name: "missing", rating: "", wantWarning: warnNoRating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, warnings, err := New(Amazon).Extract(page(append(base, tt.rating)...), widgetURL)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if product.Rating != tt.wantRating {
				t.Fatalf("rating = %q, want %q", product.Rating, tt.wantRating)
			}
			if tt.wantWarning != "" && !contains(warnings, tt.wantWarning) {
				t.Fatalf("warnings = %v, want %q", warnings, tt.wantWarning)
			}
		})
	}
}

func TestExtractIncompleteReportsAllProblems(t *testing.T) {
	html := page(detailsTable("ASIN", "B000X1234"), `<span id="acrCustomerReviewText">lots</span>`)

	product, warnings, err := New(Amazon).Extract(html, "")
	if product != nil || warnings != nil {
		t.Fatalf("expected no product and no warnings, got %+v %v", product, warnings)
	}
	var extractErr *ExtractError
	if !errors.As(err, &extractErr) {
		t.Fatalf("err = %v, want *ExtractError", err)
	}
	for _, want := range []string{problemNoTitle, problemNoPrice, warnInvalidRating} {
		if !contains(extractErr.Problems, want) {
			t.Errorf("problems %v missing %q", extractErr.Problems, want)
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	html := page(
		detailsTable("ASIN", "B000X1234"),
		`<span id="productTitle">Widget Deluxe</span>`,
		`<span class="a-offscreen">$19.99</span>`,
	)
	e := New(Amazon)
	first, _, err := e.Extract(html, widgetURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := e.Extract(html, widgetURL)
		if err != nil || *again != *first {
			t.Fatalf("run %d: got %+v (%v), want %+v", i, again, err, first)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{input: "$19.99", want: "$19.99", wantOK: true},
		{input: " $1,234.5 ", want: "$1234.50", wantOK: true},
		{input: "19.", want: "$19.00", wantOK: true},
		{input: "£10", wantOK: false},
		{input: "€ 8,50", wantOK: false},
		{input: "", wantOK: false},
		{input: "$", wantOK: false},
		{input: "free", wantOK: false},
		{input: "Inf", wantOK: false},
		{input: "NaN", wantOK: false},
		{input: "-3.00", wantOK: false},
		{input: "$10 - $20", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("ParsePrice(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTitleFromURL(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{url: "https://www.amazon.com/Widget/dp/B000X", want: "Widget", wantOK: true},
		{url: "https://www.amazon.com/Some%20Thing/dp/B000X?ref=x", want: "Some Thing", wantOK: true},
		{url: "https://www.amazon.com/a/b/Nested-Name/dp/B000X", want: "Nested-Name", wantOK: true},
		{url: "https://www.amazon.com/dp/B000X", wantOK: false},
		{url: "https://www.amazon.com/gp/product/B000X", wantOK: false},
		{url: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := TitleFromURL(tt.url, "/dp/")
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("TitleFromURL(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
