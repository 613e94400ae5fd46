package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// S3 reads objects from an S3 (or S3-compatible) bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3 downloader from the default AWS credential chain
// (environment, shared config and profiles, web identity, instance role).
// A non-empty endpoint switches to path-style addressing for S3-compatible
// stores.
func NewS3(ctx context.Context, region, endpoint, bucket string) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		return nil, errors.New("s3 region must be set")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3FromClient(client, bucket), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

// Download fetches s3://bucket/objectName.
func (s *S3) Download(ctx context.Context, objectName string) (*models.DownloadedBlob, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, objectName, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("s3 get s3://%s/%s: %w", s.bucket, objectName, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read s3://%s/%s: %w", s.bucket, objectName, err)
	}
	return &models.DownloadedBlob{
		ObjectName:  objectName,
		ContentType: contentTypeOr(aws.ToString(out.ContentType)),
		Data:        data,
	}, nil
}
