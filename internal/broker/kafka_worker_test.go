package broker

import (
	"errors"
	"testing"

	"github.com/IliaW/product-scrape-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
)

func TestProductMessage(t *testing.T) {
	product := &model.Product{
		URL:      "https://www.amazon.com/Widget/dp/B000X",
		Title:    "Widget Deluxe",
		Price:    "$19.99",
		SourceID: "B000X1234",
	}

	msg, err := productMessage(product)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != product.URL {
		t.Errorf("key = %q, want %q", msg.Key, product.URL)
	}
	var got model.Product
	if err := jsoniter.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if got != *product {
		t.Errorf("value = %+v, want %+v", got, *product)
	}
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    *model.Record
		wantErr bool
	}{
		{
			name:  "cdx style strings",
			value: `{"url":"https://www.amazon.com/dp/B000X","filename":"crawl-data/a.warc.gz","offset":"1000","length":"500"}`,
			want:  &model.Record{URL: "https://www.amazon.com/dp/B000X", Filename: "crawl-data/a.warc.gz", Offset: 1000, Length: 500},
		},
		{
			name:  "numbers",
			value: `{"url":"u","filename":"f","offset":0,"length":12}`,
			want:  &model.Record{URL: "u", Filename: "f", Offset: 0, Length: 12},
		},
		{name: "broken json", value: `{"url":`, wantErr: true},
		{name: "missing filename", value: `{"url":"u","offset":1,"length":2}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecord([]byte(tt.value))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if *got != *tt.want {
				t.Fatalf("record = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestDecodeRecordMissingFilenameSentinel(t *testing.T) {
	_, err := decodeRecord([]byte(`{"url":"u"}`))
	if !errors.Is(err, errEmptyRecord) {
		t.Fatalf("err = %v, want errEmptyRecord", err)
	}
}
