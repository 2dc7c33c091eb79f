// Package s3 stores uploaded post images in an S3 compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/edgeee/community/community"
)

const uploadTimeout = 30 * time.Second

// Config configures the bucket images are uploaded to.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // for S3 compatible services such as MinIO
	AccessKey string
	SecretKey string
	// PublicURL is the base URL objects are served from. It defaults to the
	// virtual hosted URL of the bucket.
	PublicURL string
}

// Store uploads blobs to S3.
type Store struct {
	s3        s3iface.S3API
	bucket    string
	publicURL string
}

var _ community.ContentStore = (*Store)(nil)

// New returns a Store for the configured bucket.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 upload requested but bucket missing")
	}
	region := cfg.Region
	config := aws.NewConfig()
	if cfg.AccessKey != "" {
		config = config.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	if cfg.Endpoint != "" {
		config = config.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
		if region == "" {
			region = "default-region"
		}
	}
	if region == "" {
		region = "us-east-1"
	}
	config = config.WithRegion(region)

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("new aws session: %w", err)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		if cfg.Endpoint != "" {
			publicURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}
	return NewWithClient(s3.New(sess), cfg.Bucket, publicURL), nil
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(cli s3iface.S3API, bucket, publicURL string) *Store {
	return &Store{
		s3:        cli,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// Upload puts the blob under name and returns its public URL.
func (s *Store) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read blob: %w", err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	_, err := s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object: %w", err)
	}
	return s.URL(name), nil
}

// URL returns the public URL of the object stored under name.
func (s *Store) URL(name string) string {
	return s.publicURL + "/" + strings.TrimPrefix(name, "/")
}
