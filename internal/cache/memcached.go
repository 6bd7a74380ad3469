package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/IliaW/product-scrape-worker/config"
	"github.com/bradfitz/gomemcache/memcache"
)

// CachedClient remembers which archive records were already processed.
type CachedClient interface {
	IsProcessed(string) bool
	MarkProcessed(string)
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
	log    *slog.Logger
}

func NewMemcachedClient(cacheConfig *config.CacheConfig, log *slog.Logger) *MemcachedClient {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	servers := strings.Split(cacheConfig.Servers, ",")
	err := ss.SetServers(servers...)
	if err != nil {
		log.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
		log:    log,
	}
	c.log.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		log.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c.log.Info("connected to memcached!")

	return c
}

// IsProcessed treats cache errors as a miss, the record is processed again in that case.
func (mc *MemcachedClient) IsProcessed(recordKey string) bool {
	key := ProcessedKey(recordKey)
	_, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			mc.log.Warn("failed to read processed record mark.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return false
	}
	return true
}

func (mc *MemcachedClient) MarkProcessed(recordKey string) {
	key := ProcessedKey(recordKey)
	item := &memcache.Item{
		Key:        key,
		Value:      []byte("1"),
		Expiration: int32(mc.cfg.TtlForRecord.Seconds()),
	}
	if err := mc.client.Set(item); err != nil {
		mc.log.Error("failed to save processed record mark.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	mc.log.Debug("processed record mark saved.", slog.String("key", key))
}

func (mc *MemcachedClient) Close() {
	mc.log.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		mc.log.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

// ProcessedKey maps a record key to a memcached safe key.
func ProcessedKey(recordKey string) string {
	hash := sha256.New()
	hash.Write([]byte(recordKey))
	return "processed-" + hex.EncodeToString(hash.Sum(nil))
}
