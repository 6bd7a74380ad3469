package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/product-scrape-worker/internal/cache"
	"github.com/IliaW/product-scrape-worker/internal/extractor"
	"github.com/IliaW/product-scrape-worker/internal/fetcher"
	"github.com/IliaW/product-scrape-worker/internal/metrics"
	"github.com/IliaW/product-scrape-worker/internal/model"
	"github.com/IliaW/product-scrape-worker/internal/persistence"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	minURLLength      = 24
	maxEncodedEscapes = 5
	artistRedirect    = "artist-redirect"
)

// Orchestrator drives records through fetch and extraction. Cache and Db are optional.
type Orchestrator struct {
	Fetcher    fetcher.ArchiveFetcher
	Extractor  extractor.ProductExtractor
	Cache      cache.CachedClient
	Db         persistence.OutcomeStorage
	Metrics    *metrics.Metrics
	Log        *slog.Logger
	MaxWorkers int
}

// Run processes records with at most MaxWorkers in flight and returns the extracted products
// in input order. A failing record never stops the batch. Once ctx is cancelled no new record
// is started and whatever was collected so far is returned.
func (o *Orchestrator) Run(ctx context.Context, records []*model.Record) []*model.Product {
	runID := uuid.NewString()
	log := o.Log.With(slog.String("run_id", runID))
	log.Info("starting batch.", slog.Int("records", len(records)), slog.Int("workers", o.workers()))
	start := time.Now()

	results := make([]*model.Product, len(records))
	outcomes := make([]model.Outcome, len(records))

	g := new(errgroup.Group)
	g.SetLimit(o.workers())
	for i, record := range records {
		if ctx.Err() != nil {
			log.Warn("batch cancelled, remaining records are not scheduled.", slog.Int("remaining", len(records)-i))
			break
		}
		g.Go(func() error {
			results[i], outcomes[i] = o.Process(ctx, runID, record)
			return nil
		})
	}
	_ = g.Wait()

	products := make([]*model.Product, 0, len(records))
	for _, p := range results {
		if p != nil {
			products = append(products, p)
		}
	}
	o.logSummary(log, outcomes, len(products), time.Since(start))
	o.Metrics.IncBatch()

	return products
}

// Process handles a single record and reports what happened to it. The product is nil unless
// the outcome is model.OutcomeExtracted.
func (o *Orchestrator) Process(ctx context.Context, runID string, record *model.Record) (*model.Product, model.Outcome) {
	if record == nil {
		o.Log.Debug("skipping empty record.")
		o.Metrics.IncOutcome(model.OutcomeSkipped)
		return nil, model.OutcomeSkipped
	}
	log := o.Log.With(
		slog.String("url", record.URL),
		slog.String("filename", record.Filename),
		slog.Int64("offset", record.Offset),
	)

	if reason, skip := SkipReason(record.URL); skip {
		log.Debug("skipping record.", slog.String("reason", reason))
		o.finish(runID, record, model.OutcomeSkipped, reason)
		return nil, model.OutcomeSkipped
	}
	if o.Cache != nil && o.Cache.IsProcessed(record.Key()) {
		log.Debug("record already processed.")
		o.finish(runID, record, model.OutcomeDuplicate, "")
		return nil, model.OutcomeDuplicate
	}

	t := time.Now()
	html, err := o.Fetcher.Fetch(ctx, record)
	o.Metrics.ObserveFetch(time.Since(t), len(html))
	if err != nil {
		log.Error("failed to fetch record.", slog.String("err", err.Error()))
		o.finish(runID, record, model.OutcomeFetchFailed, err.Error())
		return nil, model.OutcomeFetchFailed
	}

	product, warnings, err := o.Extractor.Extract(html, record.URL)
	if err != nil {
		outcome := model.OutcomeIncomplete
		if errors.Is(err, extractor.ErrNotProduct) {
			outcome = model.OutcomeNotProduct
			log.Info("page is not a product.")
		} else {
			log.Warn("failed to extract product.", slog.String("err", err.Error()))
		}
		o.markProcessed(record)
		o.finish(runID, record, outcome, err.Error())
		return nil, outcome
	}

	for _, warning := range warnings {
		log.Warn("extraction warning.", slog.String("warning", warning))
		o.Metrics.IncWarning(warning)
	}
	log.Debug("product extracted.", slog.String("title", product.Title), slog.String("price", product.Price))
	o.markProcessed(record)
	o.finish(runID, record, model.OutcomeExtracted, strings.Join(warnings, "; "))

	return product, model.OutcomeExtracted
}

// SkipReason reports whether a url is not worth fetching: too short to be a product page,
// heavily percent-encoded, or an artist redirect.
func SkipReason(url string) (string, bool) {
	switch {
	case len(url) < minURLLength:
		return "url too short", true
	case strings.Count(url, "%") >= maxEncodedEscapes:
		return "too many encoded characters", true
	case strings.Contains(url, artistRedirect):
		return "artist redirect", true
	}
	return "", false
}

func (o *Orchestrator) workers() int {
	if o.MaxWorkers <= 0 {
		return 1
	}
	return o.MaxWorkers
}

// markProcessed is called only for outcomes that would repeat on a retry; fetch failures may be transient.
func (o *Orchestrator) markProcessed(record *model.Record) {
	if o.Cache != nil {
		o.Cache.MarkProcessed(record.Key())
	}
}

func (o *Orchestrator) finish(runID string, record *model.Record, outcome model.Outcome, detail string) {
	o.Metrics.IncOutcome(outcome)
	if o.Db != nil {
		o.Db.Save(&model.RecordOutcome{
			RunID:   runID,
			Record:  *record,
			Outcome: outcome,
			Detail:  detail,
		})
	}
}

var summaryOrder = []model.Outcome{
	model.OutcomeExtracted,
	model.OutcomeSkipped,
	model.OutcomeDuplicate,
	model.OutcomeFetchFailed,
	model.OutcomeNotProduct,
	model.OutcomeIncomplete,
}

func (o *Orchestrator) logSummary(log *slog.Logger, outcomes []model.Outcome, products int, elapsed time.Duration) {
	counts := make(map[model.Outcome]int, len(summaryOrder))
	processed := 0
	for _, outcome := range outcomes {
		if outcome == "" {
			continue
		}
		counts[outcome]++
		processed++
	}
	attrs := []any{
		slog.Int("records", len(outcomes)),
		slog.Int("processed", processed),
		slog.Int("products", products),
		slog.Duration("elapsed", elapsed),
	}
	for _, outcome := range summaryOrder {
		attrs = append(attrs, slog.Int(string(outcome), counts[outcome]))
	}
	log.Info("batch finished.", attrs...)
}
