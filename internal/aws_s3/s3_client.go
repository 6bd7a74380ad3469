package aws_s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IliaW/product-scrape-worker/config"
	"github.com/IliaW/product-scrape-worker/internal/model"
	"github.com/IliaW/product-scrape-worker/internal/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type putObjectAPI interface {
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3BucketClient uploads product documents. It satisfies storage.ProductWriter.
type S3BucketClient struct {
	client putObjectAPI
	cfg    *config.S3Config
	log    *slog.Logger
	now    func() time.Time
}

var _ storage.ProductWriter = (*S3BucketClient)(nil)

func NewS3BucketClient(cfg *config.S3Config, log *slog.Logger) *S3BucketClient {
	log.Info("connecting to s3...")
	ctx := context.Background()

	s3Config, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		log.Error("failed to load s3 config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// LocalStack does not support `virtual host addressing style` that uses s3 by default.
	// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
	var s3client *s3.Client
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		s3client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		s3client = s3.NewFromConfig(s3Config)
	}
	log.Info("connected to s3")

	return newBucketClient(s3client, cfg, log)
}

func newBucketClient(client putObjectAPI, cfg *config.S3Config, log *slog.Logger) *S3BucketClient {
	return &S3BucketClient{
		client: client,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// WriteProducts stores the batch under <prefix>/<yyyy-mm-dd>/<uuid>.json and returns its https link.
func (bc *S3BucketClient) WriteProducts(ctx context.Context, products []*model.Product) (string, error) {
	body, err := storage.EncodeProducts(products)
	if err != nil {
		return "", err
	}
	s3Key := fmt.Sprintf("%s/%s/%s.json", bc.cfg.KeyPrefix, bc.now().UTC().Format("2006-01-02"), uuid.NewString())

	_, err = bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bc.cfg.BucketName,
		Key:         &s3Key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", s3Key, err)
	}
	bc.log.Debug("products saved to s3.", slog.String("key", s3Key), slog.Int("count", len(products)))

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bc.cfg.BucketName, bc.cfg.Region, s3Key), nil
}
