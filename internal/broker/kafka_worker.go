package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/product-scrape-worker/config"
	"github.com/IliaW/product-scrape-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

var errEmptyRecord = errors.New("record message has no filename")

type KafkaProducerClient struct {
	productChan <-chan *model.Product
	cfg         *config.ProducerConfig
	log         *slog.Logger
	wg          *sync.WaitGroup
}

// NewKafkaProducer takes extracted products from productChan and sends them to kafka.
// After shutdown, Run keeps going until productChan is drained.
func NewKafkaProducer(productChan <-chan *model.Product, cfg *config.ProducerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaProducerClient {
	return &KafkaProducerClient{
		productChan: productChan,
		cfg:         cfg,
		log:         log,
		wg:          wg,
	}
}

func (p *KafkaProducerClient) Run() {
	defer p.wg.Done()
	p.log.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))

	w := kafka.Writer{
		Addr:         kafka.TCP(strings.Split(p.cfg.Addr, ",")...),
		Topic:        p.cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  p.cfg.MaxAttempts,
		BatchSize:    1,                // the parameter is controlled by 'batchTicker' variable
		BatchTimeout: time.Millisecond, // the parameter is controlled by 'batch' variable
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.cfg.RequiredAsks),
		Async:        p.cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
	defer func() {
		err := w.Close()
		if err != nil {
			p.log.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchTicker := time.NewTicker(p.cfg.BatchTimeout)
	defer batchTicker.Stop()
	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	writeMessage := func(batch []kafka.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		err := w.WriteMessages(ctx, batch...)
		if err != nil {
			p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			return
		}
		p.log.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
	}

	for product := range p.productChan {
		msg, err := productMessage(product)
		if err != nil {
			p.log.Error("marshaling error.", slog.String("err", err.Error()), slog.String("url", product.URL))
			continue
		}
		batch = append(batch, msg)
		select {
		case <-batchTicker.C:
			writeMessage(batch)
			batch = make([]kafka.Message, 0, p.cfg.BatchSize)
		default:
			if len(batch) >= p.cfg.BatchSize {
				writeMessage(batch)
				batch = make([]kafka.Message, 0, p.cfg.BatchSize)
			}
		}
	}
	// Some messages may remain in the batch after productChan is closed
	if len(batch) > 0 {
		p.log.Debug("messages in batch.", slog.Int("count", len(batch)))
		writeMessage(batch)
	}
	p.log.Info("stopping kafka writer.")
}

// productMessage keys the message by product url so updates of one page land on one partition.
func productMessage(product *model.Product) (kafka.Message, error) {
	body, err := jsoniter.Marshal(product)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(product.URL),
		Value: body,
	}, nil
}

type KafkaConsumerClient struct {
	recordChan chan<- *model.Record
	cfg        *config.ConsumerConfig
	log        *slog.Logger
	wg         *sync.WaitGroup
}

// NewKafkaConsumer reads archive index records from kafka into recordChan. recordChan is closed on shutdown.
func NewKafkaConsumer(recordChan chan<- *model.Record, cfg *config.ConsumerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaConsumerClient {
	return &KafkaConsumerClient{
		recordChan: recordChan,
		cfg:        cfg,
		log:        log,
		wg:         wg,
	}
}

func (c *KafkaConsumerClient) Run(ctx context.Context) {
	c.log.Info("starting kafka consumer.", slog.String("topic", c.cfg.ReadTopicName))
	defer c.wg.Done()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          strings.Split(c.cfg.Brokers, ","),
		Topic:            c.cfg.ReadTopicName,
		GroupID:          c.cfg.GroupID,
		MaxWait:          c.cfg.MaxWait,
		ReadBatchTimeout: c.cfg.ReadBatchTimeout,
	})
	defer func() {
		c.log.Info("stopping kafka reader.")
		if err := r.Close(); err != nil {
			c.log.Error("failed to close kafka reader.", slog.String("err", err.Error()))
		}
		close(c.recordChan)
		c.log.Info("close recordChan.")
	}()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("failed to read message from kafka.", slog.String("err", err.Error()))
			continue
		}
		c.log.Debug("successfully read messages from kafka.")

		record, err := decodeRecord(m.Value)
		if err != nil {
			c.log.Error("failed to unmarshal message.", slog.String("err", err.Error()),
				slog.String("key", string(m.Key)))
			continue
		}
		select {
		case c.recordChan <- record:
		case <-ctx.Done():
			return
		}
	}
}

func decodeRecord(value []byte) (*model.Record, error) {
	var record model.Record
	if err := jsoniter.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if record.Filename == "" {
		return nil, errEmptyRecord
	}
	return &record, nil
}
