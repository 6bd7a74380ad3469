package crawler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IliaW/product-scrape-worker/config"
	"github.com/IliaW/product-scrape-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/karust/gogetcrawl/common"
	"github.com/karust/gogetcrawl/commoncrawl"
	"github.com/patrickmn/go-cache"
)

const indexListUrl = "https://index.commoncrawl.org/collinfo.json"

var ErrNoRecords = errors.New("no records found")

type Index struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Timegate string `json:"timegate"`
	CdxAPI   string `json:"cdx-api"`
}

// RecordSource finds archive index records for a url pattern.
type RecordSource interface {
	FindRecords(urlPattern string) ([]*model.Record, error)
}

type CommonCrawlerService struct {
	crawler    *commoncrawl.CommonCrawl
	cfg        *config.CrawlerConfig
	log        *slog.Logger
	localCache *cache.Cache
}

func NewCrawlService(cfg *config.CrawlerConfig, log *slog.Logger) *CommonCrawlerService {
	c, err := commoncrawl.New(cfg.RequestTimeout, cfg.Retries)
	if err != nil {
		log.Error("failed to create common crawl client", slog.String("err", err.Error()))
	}
	return &CommonCrawlerService{
		crawler:    c,
		cfg:        cfg,
		log:        log,
		localCache: cache.New(72*time.Hour, 72*time.Hour), // indexes update every month
	}
}

// FindRecords queries the most recent crawl indexes for html pages answered with 200 that match urlPattern.
// Records repeated across indexes are returned once.
func (c *CommonCrawlerService) FindRecords(urlPattern string) ([]*model.Record, error) {
	if c.crawler == nil { // due to request limitations, the crawler may not be initialized when the application starts
		c.log.Info("connection retry to common crawl.")
		var err error
		c.crawler, err = commoncrawl.New(c.cfg.RequestTimeout, c.cfg.Retries)
		if err != nil {
			c.log.Error("failed to create common crawl client", slog.String("err", err.Error()))
			return nil, errors.New("connection to common crawl failed")
		}
	}

	indexList, err := c.getIndexes()
	if err != nil {
		return nil, fmt.Errorf("get crawl indexes: %w", err)
	}
	requestCfg := common.RequestConfig{
		URL:     urlPattern,
		Filters: []string{"statuscode:200", "mimetype:text/html"},
	}

	seen := make(map[string]struct{})
	var records []*model.Record
	for _, index := range recentIndexes(indexList, c.cfg.LastCrawlIndexes) {
		pages, err := c.crawler.GetPagesIndex(requestCfg, index.Id)
		if err != nil {
			c.log.Warn("failed to query index.", slog.String("index", index.Id), slog.String("err", err.Error()))
			continue
		}
		if len(pages) == 0 {
			c.log.Debug("no pages found", slog.String("pattern", urlPattern), slog.String("index", index.Id))
			continue
		}
		for _, page := range pages {
			record, err := toRecord(page)
			if err != nil {
				c.log.Debug("skipping index entry.", slog.String("index", index.Id), slog.String("err", err.Error()))
				continue
			}
			if _, ok := seen[record.Key()]; ok {
				continue
			}
			seen[record.Key()] = struct{}{}
			records = append(records, record)
		}
	}
	if len(records) == 0 {
		c.log.Info("no records found", slog.String("pattern", urlPattern))
		return nil, ErrNoRecords
	}
	c.log.Info("records found.", slog.String("pattern", urlPattern), slog.Int("count", len(records)))

	return records, nil
}

func (c *CommonCrawlerService) getIndexes() ([]Index, error) {
	if i, ok := c.localCache.Get("indexes"); ok {
		return i.([]Index), nil
	}

	response, err := common.Get(indexListUrl, c.crawler.MaxTimeout, c.crawler.MaxRetries)
	if err != nil {
		return nil, err
	}

	var indexes []Index
	err = jsoniter.Unmarshal(response, &indexes)
	if err != nil {
		return indexes, err
	}
	c.localCache.Set("indexes", indexes, cache.DefaultExpiration)

	return indexes, nil
}

// recentIndexes returns the first n indexes, collinfo.json lists the newest crawl first.
func recentIndexes(indexes []Index, n int) []Index {
	if n <= 0 {
		n = 1
	}
	if n > len(indexes) {
		n = len(indexes)
	}
	return indexes[:n]
}

// toRecord converts a CDX entry into a Record through its json form, the CDX fields share our names.
func toRecord(page any) (*model.Record, error) {
	data, err := jsoniter.Marshal(page)
	if err != nil {
		return nil, err
	}
	var record model.Record
	if err = jsoniter.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	if record.Filename == "" || record.Length <= 0 {
		return nil, fmt.Errorf("incomplete cdx entry for %q", record.URL)
	}
	return &record, nil
}
