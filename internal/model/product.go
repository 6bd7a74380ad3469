package model

import "strings"

// Product is one scraped product listing.
type Product struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	SourceID string `json:"sourceId"`
	Rating   string `json:"rating"`
}

func (p *Product) SetURL(url string) {
	p.URL = strings.TrimSpace(url)
}

func (p *Product) SetTitle(title string) {
	p.Title = strings.TrimSpace(title)
}

func (p *Product) SetPrice(price string) {
	p.Price = strings.TrimSpace(price)
}

func (p *Product) SetSourceID(id string) {
	p.SourceID = strings.TrimSpace(id)
}

func (p *Product) SetRating(rating string) {
	p.Rating = strings.TrimSpace(rating)
}

// Complete reports whether the product carries every required field.
// SourceID and Rating are optional.
func (p *Product) Complete() bool {
	return p.URL != "" && p.Title != "" && p.Price != ""
}
