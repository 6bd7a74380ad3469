package input

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/IliaW/product-scrape-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
)

var ErrEmptyInput = errors.New("records file is empty")

// LoadRecords reads archive index records from path. The file holds either a JSON array
// of records or one record per line as the CDX API returns them.
func LoadRecords(path string) ([]*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	return ParseRecords(data)
}

func ParseRecords(data []byte) ([]*model.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyInput
	}
	if trimmed[0] == '[' {
		var records []*model.Record
		if err := jsoniter.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode records array: %w", err)
		}
		return records, nil
	}

	var records []*model.Record
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var record model.Record
		if err := jsoniter.Unmarshal(text, &record); err != nil {
			return nil, fmt.Errorf("decode record on line %d: %w", line, err)
		}
		records = append(records, &record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}

	return records, nil
}
