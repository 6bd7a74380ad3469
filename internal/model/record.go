package model

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Record points at one archived HTTP response inside a remote archive segment.
// Field names follow the Common Crawl CDX API.
type Record struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
}

// RangeEnd returns the last byte of the record, inclusive.
func (r *Record) RangeEnd() int64 {
	return r.Offset + r.Length - 1
}

// Key identifies the record inside the archive regardless of the url it describes.
func (r *Record) Key() string {
	return fmt.Sprintf("%s:%d:%d", r.Filename, r.Offset, r.Length)
}

// UnmarshalJSON accepts offset and length both as numbers and as quoted numbers,
// the CDX API returns the latter.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL      string              `json:"url"`
		Filename string              `json:"filename"`
		Offset   jsoniter.RawMessage `json:"offset"`
		Length   jsoniter.RawMessage `json:"length"`
	}
	if err := jsoniter.Unmarshal(data, &raw); err != nil {
		return err
	}
	offset, err := parseJSONInt(raw.Offset)
	if err != nil {
		return fmt.Errorf("offset: %w", err)
	}
	length, err := parseJSONInt(raw.Length)
	if err != nil {
		return fmt.Errorf("length: %w", err)
	}
	r.URL = raw.URL
	r.Filename = raw.Filename
	r.Offset = offset
	r.Length = length

	return nil
}

func parseJSONInt(raw []byte) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
