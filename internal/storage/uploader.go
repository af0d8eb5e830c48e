package storage

import (
	"bytes"
	"context"
	"fmt"

	appconfig "github.com/tsullivan13/skate-bounty-app/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader pushes bytes to object storage and returns the public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type S3Uploader struct {
	client  *s3.Client
	bucket  string
	cdnBase string
}

// NewS3Uploader builds an S3-compatible uploader from config. Returns nil
// when no bucket is configured, which switches the service to stub URLs.
func NewS3Uploader(cfg appconfig.Config) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	cdnBase := cfg.CDNBaseURL
	if cdnBase == "" && cfg.S3Endpoint != "" {
		cdnBase = cfg.S3Endpoint + "/" + cfg.S3Bucket
	}
	return &S3Uploader{client: client, bucket: cfg.S3Bucket, cdnBase: cdnBase}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return u.cdnBase + "/" + key, nil
}
