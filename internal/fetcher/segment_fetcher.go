package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IliaW/product-scrape-worker/config"
	"github.com/IliaW/product-scrape-worker/internal/model"
	"github.com/gocolly/colly"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/unicode"
)

var (
	ErrInvalidRecord     = errors.New("invalid record")
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrDecompress        = errors.New("failed to decompress payload")
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// ArchiveFetcher returns the HTTP response body stored for a record.
type ArchiveFetcher interface {
	Fetch(context.Context, *model.Record) (string, error)
}

// SegmentFetcher reads single records out of remote gzip archive segments with ranged requests.
// Every fetch uses its own collector, all collectors share one transport and its connection pool.
type SegmentFetcher struct {
	cfg       *config.WorkerConfig
	log       *slog.Logger
	transport http.RoundTripper
}

func NewSegmentFetcher(cfg *config.WorkerConfig, log *slog.Logger) *SegmentFetcher {
	return &SegmentFetcher{
		cfg: cfg,
		log: log,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.FetchTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: cfg.MaxWorkers,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableCompression:  true,
		},
	}
}

// WithTransport replaces the shared transport.
func (f *SegmentFetcher) WithTransport(transport http.RoundTripper) {
	f.transport = transport
}

// Fetch downloads the record's byte range, decompresses it and strips the envelope.
// Failures are never retried.
func (f *SegmentFetcher) Fetch(ctx context.Context, record *model.Record) (string, error) {
	if err := validateRecord(record); err != nil {
		return "", err
	}
	segmentURL := f.segmentURL(record.Filename)
	f.log.Debug("downloading record.", slog.String("segment", segmentURL),
		slog.Int64("offset", record.Offset), slog.Int64("length", record.Length))

	raw, err := f.fetchRange(ctx, segmentURL, record.Offset, record.RangeEnd())
	if err != nil {
		return "", err
	}
	payload, err := decompress(raw)
	if err != nil {
		return "", err
	}

	return StripEnvelope(decodeText(payload))
}

func (f *SegmentFetcher) fetchRange(ctx context.Context, segmentURL string, from, to int64) ([]byte, error) {
	tCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	c := colly.NewCollector()
	c.SetRequestTimeout(f.cfg.FetchTimeout)
	c.WithTransport(&contextTransport{ctx: tCtx, base: f.transport})
	c.UserAgent = f.cfg.UserAgent
	c.MaxBodySize = 0
	// colly reports every status above 202 as an error unless told to parse it.
	c.ParseHTTPErrorResponse = true
	// COLLY_DETECT_CHARSET may have switched this on, the body is gzip and must not be transcoded.
	c.DetectCharset = false

	var (
		status int
		body   []byte
	)
	c.OnResponse(func(resp *colly.Response) {
		status = resp.StatusCode
		body = resp.Body
	})

	hdr := http.Header{}
	hdr.Set("Range", "bytes="+strconv.FormatInt(from, 10)+"-"+strconv.FormatInt(to, 10))
	hdr.Set("User-Agent", f.cfg.UserAgent)
	hdr.Set("Accept-Encoding", "identity")

	if err := c.Request(http.MethodGet, segmentURL, nil, nil, hdr); err != nil {
		return nil, fmt.Errorf("request %s: %w", segmentURL, err)
	}
	if status != http.StatusPartialContent {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}

	return body, nil
}

func (f *SegmentFetcher) segmentURL(filename string) string {
	return strings.TrimRight(f.cfg.ArchiveBaseURL, "/") + "/" + strings.TrimLeft(filename, "/")
}

func validateRecord(record *model.Record) error {
	switch {
	case record == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case strings.TrimSpace(record.Filename) == "":
		return fmt.Errorf("%w: empty filename", ErrInvalidRecord)
	case record.Offset < 0:
		return fmt.Errorf("%w: negative offset %d", ErrInvalidRecord, record.Offset)
	case record.Length <= 0:
		return fmt.Errorf("%w: non-positive length %d", ErrInvalidRecord, record.Length)
	}
	return nil
}

func decompress(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return data, nil
}

// decodeText replaces invalid UTF-8 sequences with U+FFFD.
func decodeText(payload []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(payload)
	if err != nil {
		return strings.ToValidUTF8(string(payload), "\uFFFD")
	}
	return string(decoded)
}

// contextTransport binds requests issued by colly, which has no context support, to ctx.
// Responses are handed back as opaque bytes so colly neither gunzips nor transcodes the segment.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if resp != nil {
		resp.Header.Del("Content-Encoding")
		resp.Header.Set("Content-Type", "application/octet-stream")
	}
	return resp, err
}
