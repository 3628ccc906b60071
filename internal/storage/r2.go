package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/joseph-ayodele/po-extractor/internal/common"
)

// Archiver stores a copy of an uploaded purchase order.
type Archiver interface {
	Put(ctx context.Context, key, localPath string) error
}

// R2Client archives files to an S3-compatible bucket (Cloudflare R2, MinIO, S3).
type R2Client struct {
	client *s3.Client
	bucket string
	log    *slog.Logger
}

func NewR2Client(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (*R2Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled() {
		return nil, common.NewAppError("CONFIG_ERROR", "R2_ENDPOINT and R2_BUCKET_NAME are required", common.ErrInvalidInput)
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &R2Client{client: client, bucket: cfg.Bucket, log: logger}, nil
}

func (r *R2Client) Put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	start := time.Now()
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		r.log.Error("storage.put.failed", "bucket", r.bucket, "key", key, "err", err)
		return fmt.Errorf("put %s: %w", key, err)
	}
	r.log.Info("storage.put.ok", "bucket", r.bucket, "key", key, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// KeyFor builds the object key for an uploaded document: purchase-orders/<CUSTOMER>/<job id>/<file name>.
func KeyFor(customer, jobID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload.pdf"
	}
	return path.Join("purchase-orders", strings.ToUpper(customer), jobID, name)
}
