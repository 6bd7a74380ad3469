package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/product-scrape-worker/config"
	"github.com/IliaW/product-scrape-worker/internal/aws_s3"
	"github.com/IliaW/product-scrape-worker/internal/broker"
	cacheClient "github.com/IliaW/product-scrape-worker/internal/cache"
	"github.com/IliaW/product-scrape-worker/internal/crawler"
	"github.com/IliaW/product-scrape-worker/internal/extractor"
	"github.com/IliaW/product-scrape-worker/internal/fetcher"
	"github.com/IliaW/product-scrape-worker/internal/input"
	"github.com/IliaW/product-scrape-worker/internal/metrics"
	"github.com/IliaW/product-scrape-worker/internal/model"
	"github.com/IliaW/product-scrape-worker/internal/persistence"
	"github.com/IliaW/product-scrape-worker/internal/storage"
	"github.com/IliaW/product-scrape-worker/internal/worker"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cfg *config.Config
	log *slog.Logger
	db  *sql.DB
	m   *metrics.Metrics
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	log = setupLogger()
	m = metrics.NewMetrics()
	metricsServer := startMetricsServer()
	defer stopMetricsServer(metricsServer)
	log.Info("starting application.", slog.String("env", cfg.Env), slog.String("mode", cfg.Mode),
		slog.String("version", cfg.Version))

	orchestrator := &worker.Orchestrator{
		Fetcher:    fetcher.NewSegmentFetcher(cfg.WorkerSettings, log),
		Extractor:  extractor.New(extractor.Amazon),
		Metrics:    m,
		Log:        log,
		MaxWorkers: cfg.WorkerSettings.MaxWorkers,
	}
	if cfg.DatabaseEnabled() {
		db = setupDatabase()
		defer closeDatabase()
		orchestrator.Db = persistence.NewOutcomeRepository(db, log)
	}

	switch cfg.Mode {
	case config.ModeStream:
		runStream(ctx, orchestrator)
	default:
		if err := runBatch(ctx, orchestrator); err != nil {
			log.Error("batch failed.", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}
}

func runBatch(ctx context.Context, orchestrator *worker.Orchestrator) error {
	records, err := loadRecords()
	if err != nil {
		return err
	}

	products := orchestrator.Run(ctx, records)

	// the document is written even after an interrupt, it holds whatever was collected
	writeCtx := context.WithoutCancel(ctx)
	location, err := storage.NewFileWriter(cfg.OutputSettings.Path, log).WriteProducts(writeCtx, products)
	if err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	if cfg.S3Enabled() {
		link, err := aws_s3.NewS3BucketClient(cfg.S3Settings, log).WriteProducts(writeCtx, products)
		if err != nil {
			log.Error("failed to upload products to s3.", slog.String("err", err.Error()))
		} else {
			log.Info("products uploaded to s3.", slog.String("link", link))
		}
	}
	log.Info("done.", slog.Int("records", len(records)), slog.Int("products", len(products)),
		slog.String("output", location))

	return nil
}

func loadRecords() ([]*model.Record, error) {
	if cfg.InputSettings.RecordsFile != "" {
		log.Info("loading records.", slog.String("file", cfg.InputSettings.RecordsFile))
		return input.LoadRecords(cfg.InputSettings.RecordsFile)
	}
	log.Info("querying common crawl index.", slog.String("pattern", cfg.InputSettings.URLPattern))
	return crawler.NewCrawlService(cfg.CrawlerSettings, log).FindRecords(cfg.InputSettings.URLPattern)
}

func runStream(ctx context.Context, orchestrator *worker.Orchestrator) {
	if cfg.CacheEnabled() {
		cache := cacheClient.NewMemcachedClient(cfg.CacheSettings, log)
		defer cache.Close()
		orchestrator.Cache = cache
	}
	seen, err := lru.New[string, struct{}](cfg.WorkerSettings.DedupeSize)
	if err != nil {
		log.Error("failed to create dedupe cache.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	recordChan := make(chan *model.Record, 100)
	productChan := make(chan *model.Product, 100)
	panicChan := make(chan struct{}, cfg.WorkerSettings.MaxWorkers)

	kafkaWg := &sync.WaitGroup{}
	kafkaWg.Add(1)
	go broker.NewKafkaConsumer(recordChan, cfg.KafkaSettings.Consumer, log, kafkaWg).Run(ctx)

	// workers drain recordChan after shutdown, so in-flight fetches must outlive the signal
	workerCtx := context.WithoutCancel(ctx)
	workerWg := &sync.WaitGroup{}
	streamWorker := &worker.StreamWorker{
		InputChan:    recordChan,
		OutputChan:   productChan,
		PanicChan:    panicChan,
		Orchestrator: orchestrator,
		Seen:         seen,
		Log:          log,
		Wg:           workerWg,
		RunID:        uuid.NewString(),
	}
	for i := 0; i < cfg.WorkerSettings.MaxWorkers; i++ {
		workerWg.Add(1)
		go streamWorker.Run(workerCtx)
	}
	// Restart workers if they panic.
	go func() {
		for range panicChan {
			workerWg.Add(1)
			go streamWorker.Run(workerCtx)
			time.Sleep(3 * time.Minute) // timeout to avoid polluting logs if something unrecoverable happened
		}
	}()

	kafkaWg.Add(1)
	go broker.NewKafkaProducer(productChan, cfg.KafkaSettings.Producer, log, kafkaWg).Run()

	// Graceful shutdown.
	// 1. Stop Kafka Consumer by system call. Close recordChan
	// 2. Wait till all Workers processed all messages from recordChan. Close productChan
	// 3. Wait till Producer process all messages from productChan and write to kafka
	// 4. Stop Kafka Producer. Close database and memcached connections
	<-ctx.Done()
	log.Info("stopping server...")
	workerWg.Wait()
	close(productChan)
	log.Info("close productChan.")
	close(panicChan)
	log.Info("close panicChan.")
	kafkaWg.Wait()
}

func startMetricsServer() *http.Server {
	if cfg.Port == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed.", slog.String("err", err.Error()))
		}
	}()
	log.Info("metrics server enabled.", slog.String("port", cfg.Port))

	return srv
}

func stopMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("failed to stop metrics server.", slog.String("err", err.Error()))
	}
}

func setupLogger() *slog.Logger {
	resolvedLogLevel := func() slog.Level {
		envLogLevel := strings.ToLower(cfg.LogLevel)
		switch envLogLevel {
		case "info":
			return slog.LevelInfo
		case "warn":
			return slog.LevelWarn
		case "error":
			return slog.LevelError
		default:
			return slog.LevelDebug
		}
	}

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs,
			NoColor:     false}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupDatabase() *sql.DB {
	log.Info("connecting to the database...")
	sqlCfg := mysql.Config{
		User:                 cfg.DbSettings.User,
		Passwd:               cfg.DbSettings.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%s", cfg.DbSettings.Host, cfg.DbSettings.Port),
		DBName:               cfg.DbSettings.Name,
		AllowNativePasswords: true,
		ParseTime:            true,
	}
	database, err := sql.Open("mysql", sqlCfg.FormatDSN())
	if err != nil {
		log.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		log.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			log.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				log.Error("failed to establish database connection.")
				os.Exit(1)
			}
			log.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	log.Info("connected to the database!")

	return database
}

func closeDatabase() {
	log.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		log.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}
