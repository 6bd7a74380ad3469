package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IliaW/product-scrape-worker/internal/model"
	lru "github.com/hashicorp/golang-lru/v2"
)

// StreamWorker processes records arriving on InputChan until it is closed and sends
// extracted products to OutputChan.
type StreamWorker struct {
	InputChan    <-chan *model.Record
	OutputChan   chan<- *model.Product
	PanicChan    chan struct{}
	Orchestrator *Orchestrator
	Seen         *lru.Cache[string, struct{}]
	Log          *slog.Logger
	Wg           *sync.WaitGroup
	RunID        string
}

// Run starts the stream worker. A panic is reported on PanicChan so the worker can be restarted.
func (w *StreamWorker) Run(ctx context.Context) {
	// Done runs after the panic is reported, shutdown closes PanicChan only once all workers are done.
	defer w.Wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("PANIC!", slog.Any("err", r))
			w.PanicChan <- struct{}{}
		}
	}()
	w.Log.Debug("starting stream worker.")

	for record := range w.InputChan {
		if record == nil {
			continue
		}
		// records redelivered by kafka after a rebalance are usually still in the window
		if w.Seen != nil {
			if found, _ := w.Seen.ContainsOrAdd(record.Key(), struct{}{}); found {
				w.Log.Debug("duplicate record in stream.", slog.String("url", record.URL))
				w.Orchestrator.Metrics.IncOutcome(model.OutcomeDuplicate)
				continue
			}
		}
		product, _ := w.Orchestrator.Process(ctx, w.RunID, record)
		if product != nil {
			w.OutputChan <- product
		}
	}
}
