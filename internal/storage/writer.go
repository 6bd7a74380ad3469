package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/IliaW/product-scrape-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
)

// ProductWriter persists a batch of products as one document and returns where it went.
type ProductWriter interface {
	WriteProducts(context.Context, []*model.Product) (string, error)
}

// EncodeProducts renders products as an indented JSON array. An empty batch renders as [].
func EncodeProducts(products []*model.Product) ([]byte, error) {
	if products == nil {
		products = []*model.Product{}
	}
	data, err := jsoniter.MarshalIndent(products, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}
	return data, nil
}

// FileWriter writes the product document to a local path, creating parent directories.
type FileWriter struct {
	path string
	log  *slog.Logger
}

func NewFileWriter(path string, log *slog.Logger) *FileWriter {
	return &FileWriter{path: path, log: log}
}

func (fw *FileWriter) WriteProducts(_ context.Context, products []*model.Product) (string, error) {
	fw.log.Info("saving products locally.", slog.Int("count", len(products)))
	data, err := EncodeProducts(products)
	if err != nil {
		return "", err
	}
	if err := ensureDir(fw.path); err != nil {
		return "", err
	}
	if err := os.WriteFile(fw.path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", fw.path, err)
	}
	fw.log.Info("products saved.", slog.String("path", fw.path))

	return fw.path, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
