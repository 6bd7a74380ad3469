package extractor

// Marketplace bundles the markup specific knowledge used to recognise and read product pages.
// Strategies in each list are tried in order.
type Marketplace struct {
	Name string
	// Classifiers return the marketplace identifier of the product when the page is a product page.
	Classifiers []Strategy
	Title       []Strategy
	// URLTitleDelimiter marks the end of the url path segment used as a fallback title.
	URLTitleDelimiter string
	Price             []Strategy
	// Rating returns the raw review count text.
	Rating Strategy
}

var Amazon = &Marketplace{
	Name: "amazon",
	Classifiers: []Strategy{
		DetailsTableValue("table#productDetails_detailBullets_sections1", "ASIN"),
		BoldLabelValue("ASIN:"),
	},
	Title: []Strategy{
		TextOf("span#productTitle"),
		TextOf("span#btAsinTitle"),
	},
	URLTitleDelimiter: "/dp/",
	Price: []Strategy{
		PriceOf("span#priceblock_saleprice"),
		PriceOf("span#priceblock_ourprice"),
		PriceOf("span#priceblock_dealprice"),
		PriceOf("span.a-price-whole"),
		PriceOf("span.a-offscreen"),
	},
	Rating: TextOf("span#acrCustomerReviewText"),
}
