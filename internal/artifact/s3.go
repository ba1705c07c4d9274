package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cozy-creator/lesion-server/internal/config"
	"go.uber.org/zap"
)

// ParseS3URL splits "s3://bucket/key". An empty bucket falls back to
// defaultBucket.
func ParseS3URL(source, defaultBucket string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", source)
	}

	bucket = u.Host
	if bucket == "" {
		bucket = defaultBucket
	}
	key = strings.TrimPrefix(u.Path, "/")

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q needs both a bucket and a key", source)
	}

	return bucket, key, nil
}

func newS3Client(ctx context.Context, cfg *config.S3Config) (*s3.Client, error) {
	if cfg == nil {
		return nil, errors.New("s3 config is not set")
	}

	opts := []func(*awsConfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Region))
	} else {
		opts = append(opts, awsConfig.WithRegion("auto"))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointUrl != "" {
			o.BaseEndpoint = &cfg.EndpointUrl
			o.UsePathStyle = true
		}
	}), nil
}

func (f *Fetcher) downloadS3(ctx context.Context, source, dest string) error {
	var defaultBucket string
	if f.s3 != nil {
		defaultBucket = f.s3.Bucket
	}

	bucket, key, err := ParseS3URL(source, defaultBucket)
	if err != nil {
		return err
	}

	client, err := newS3Client(ctx, f.s3)
	if err != nil {
		return err
	}

	f.logger.Info("downloading artifact from s3", zap.String("bucket", bucket), zap.String("key", key))
	object, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to get s3 object: %w", err)
	}
	defer object.Body.Close()

	return writeAtomic(dest, object.Body)
}
