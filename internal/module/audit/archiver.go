package audit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/terangashop/server/internal/shared/config"
)

// Archiver writes raw audit payloads to S3-compatible object storage so
// webhook bodies survive database retention limits and can be replayed for
// dispute resolution.
type Archiver struct {
	client *s3.Client
	bucket string
}

// NewArchiver creates a new payload archiver.
func NewArchiver(ctx context.Context, cfg *config.ArchiveConfig) (*Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Archive stores a raw payload under a date-partitioned key and returns the
// object key.
func (a *Archiver) Archive(ctx context.Context, entry *LogEntry) (string, error) {
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	key := fmt.Sprintf("audit/%s/%s/%s.json",
		time.Now().UTC().Format("2006/01/02"),
		entry.EventType,
		id,
	)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(entry.Payload)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put audit object: %w", err)
	}
	return key, nil
}
