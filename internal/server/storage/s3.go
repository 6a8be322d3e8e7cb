package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/server/config"
)

// s3API is the slice of the S3 client the provider needs.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Provider stores blobs in an S3-compatible bucket. Objects are named
// by the file uuid and fetched through a public base URL rather than the
// API, so Get returns a link, not bytes.
type S3Provider struct {
	client    s3API
	bucket    string
	publicURL string
}

// NewS3Provider builds the client from static credentials with path-style
// addressing, which keeps self-hosted backends like MinIO working.
func NewS3Provider(ctx context.Context, cfg *config.Config) (*S3Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &S3Provider{
		client:    client,
		bucket:    cfg.S3BucketName,
		publicURL: strings.TrimRight(cfg.S3PublicURL, "/"),
	}, nil
}

func (p *S3Provider) objectURL(id uuid.UUID) string {
	return p.publicURL + "/" + id.String()
}

func (p *S3Provider) Store(ctx context.Context, id uuid.UUID, data []byte) (*string, error) {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(id.String()),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading object %s: %w", id, err)
	}
	url := p.objectURL(id)
	return &url, nil
}

func (p *S3Provider) Get(_ context.Context, id uuid.UUID) (*Fetch, error) {
	return &Fetch{URL: p.objectURL(id)}, nil
}

func (p *S3Provider) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(id.String()),
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", id, err)
	}
	return nil
}

func (p *S3Provider) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(id.String()),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking object %s: %w", id, err)
	}
	return true, nil
}

func (p *S3Provider) UsedStorage(ctx context.Context) (uint64, error) {
	var total uint64
	var token *string
	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return 0, fmt.Errorf("listing bucket %s: %w", p.bucket, err)
		}
		for _, obj := range out.Contents {
			if obj.Size != nil {
				total += uint64(*obj.Size)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return total, nil
		}
		token = out.NextContinuationToken
	}
}
