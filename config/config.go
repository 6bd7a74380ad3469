package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModeBatch  = "batch"
	ModeStream = "stream"
)

type Config struct {
	Env             string          `mapstructure:"env"`
	LogLevel        string          `mapstructure:"log_level"`
	LogType         string          `mapstructure:"log_type"`
	ServiceName     string          `mapstructure:"service_name"`
	Port            string          `mapstructure:"port"`
	Version         string          `mapstructure:"version"`
	Mode            string          `mapstructure:"mode"`
	WorkerSettings  *WorkerConfig   `mapstructure:"worker"`
	InputSettings   *InputConfig    `mapstructure:"input"`
	OutputSettings  *OutputConfig   `mapstructure:"output"`
	CacheSettings   *CacheConfig    `mapstructure:"cache"`
	DbSettings      *DatabaseConfig `mapstructure:"database"`
	KafkaSettings   *KafkaConfig    `mapstructure:"kafka"`
	S3Settings      *S3Config       `mapstructure:"s3"`
	CrawlerSettings *CrawlerConfig  `mapstructure:"crawler"`
}

type WorkerConfig struct {
	MaxWorkers     int           `mapstructure:"max_workers"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	ArchiveBaseURL string        `mapstructure:"archive_base_url"`
	DedupeSize     int           `mapstructure:"dedupe_size"`
}

// InputConfig selects where batch mode takes its records from. RecordsFile wins over URLPattern.
type InputConfig struct {
	RecordsFile string `mapstructure:"records_file"`
	URLPattern  string `mapstructure:"url_pattern"`
}

type OutputConfig struct {
	Path string `mapstructure:"path"`
}

type CacheConfig struct {
	Servers      string        `mapstructure:"servers"`
	TtlForRecord time.Duration `mapstructure:"ttl_for_record"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
	Consumer *ConsumerConfig `mapstructure:"consumer"`
}

type ProducerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type ConsumerConfig struct {
	ReadTopicName    string        `mapstructure:"read_topic_name"`
	Brokers          string        `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	ReadBatchTimeout time.Duration `mapstructure:"read_batch_timeout"`
}

type S3Config struct {
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type CrawlerConfig struct {
	RequestTimeout   int `mapstructure:"request_timeout"`
	Retries          int `mapstructure:"retries"`
	LastCrawlIndexes int `mapstructure:"last_crawl_indexes"`
}

func MustLoad() *Config {
	cfg, err := Load(path.Join("."))
	if err != nil {
		slog.Error("can't initialize config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return cfg
}

// Load reads config.yaml from dir, applies defaults and environment overrides and validates the result.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "text")
	v.SetDefault("mode", ModeBatch)
	v.SetDefault("worker.max_workers", 4)
	v.SetDefault("worker.fetch_timeout", 30*time.Second)
	v.SetDefault("worker.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36")
	v.SetDefault("worker.archive_base_url", "https://data.commoncrawl.org/")
	v.SetDefault("worker.dedupe_size", 10000)
	v.SetDefault("output.path", "data/products.json")
	v.SetDefault("crawler.request_timeout", 30)
	v.SetDefault("crawler.retries", 3)
	v.SetDefault("crawler.last_crawl_indexes", 1)
	v.SetDefault("cache.ttl_for_record", 720*time.Hour)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Mode != ModeBatch && c.Mode != ModeStream {
		return fmt.Errorf("mode must be %q or %q", ModeBatch, ModeStream)
	}
	if c.WorkerSettings == nil {
		return errors.New("worker section is required")
	}
	if c.WorkerSettings.MaxWorkers <= 0 {
		return errors.New("max workers must be positive")
	}
	if c.WorkerSettings.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if c.WorkerSettings.UserAgent == "" {
		return errors.New("user agent cannot be empty")
	}
	base, err := url.Parse(c.WorkerSettings.ArchiveBaseURL)
	if err != nil {
		return fmt.Errorf("invalid archive base url: %w", err)
	}
	if base.Host == "" {
		return errors.New("archive base url must include a host")
	}

	switch c.Mode {
	case ModeBatch:
		if c.InputSettings == nil || (c.InputSettings.RecordsFile == "" && c.InputSettings.URLPattern == "") {
			return errors.New("batch mode needs input.records_file or input.url_pattern")
		}
		if c.OutputSettings == nil || c.OutputSettings.Path == "" {
			return errors.New("output path cannot be empty")
		}
	case ModeStream:
		if c.KafkaSettings == nil || c.KafkaSettings.Consumer == nil || c.KafkaSettings.Producer == nil {
			return errors.New("stream mode needs kafka consumer and producer settings")
		}
	}

	return nil
}

// CacheEnabled, DatabaseEnabled and S3Enabled report whether the optional collaborators are configured.
func (c *Config) CacheEnabled() bool {
	return c.CacheSettings != nil && c.CacheSettings.Servers != ""
}

func (c *Config) DatabaseEnabled() bool {
	return c.DbSettings != nil && c.DbSettings.Host != ""
}

func (c *Config) S3Enabled() bool {
	return c.S3Settings != nil && c.S3Settings.BucketName != ""
}
