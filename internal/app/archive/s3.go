package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"coedit/internal/pkg/logx"
)

// s3Archiver implements the Archiver interface against S3-compatible storage.
type s3Archiver struct {
	cfg      Config
	client   *s3.Client
	uploader *manager.Uploader
}

// newS3Archiver initializes the S3 client using a custom configuration that
// supports S3-compatible endpoints.
func newS3Archiver(cfg Config) (*s3Archiver, error) {
	sdkCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		logx.Error(err, "Failed to load AWS SDK config")
		return nil, errors.New("failed to initialize S3 archiver configuration")
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &s3Archiver{
		cfg:      cfg,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveSnapshot uploads the document content under {kind}/{id}/{unix}.txt.
func (a *s3Archiver) ArchiveSnapshot(ctx context.Context, kind, id, content string) error {
	key := fmt.Sprintf("%s/%s/%d.txt", kind, id, time.Now().Unix())
	contentType := "text/plain; charset=utf-8"

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &a.cfg.S3BucketName,
		Key:         &key,
		Body:        strings.NewReader(content),
		ContentType: &contentType,
	})
	if err != nil {
		logx.Error(err, "Snapshot upload failed", "key", key)
		return fmt.Errorf("failed to archive snapshot %s: %w", key, err)
	}

	return nil
}
