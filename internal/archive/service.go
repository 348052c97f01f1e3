// Package archive stores exported audit artifacts in S3-compatible object
// storage so compliance handoffs have a durable, shareable location outside
// the database that holds the chain itself.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/onnwee/audittrail/internal/audit"
)

// Validation errors.
var (
	ErrEmptyArtifact = errors.New("artifact data is empty")
)

// Artifact is one export payload to be archived.
type Artifact struct {
	// Data is the serialized export, produced by audit.Export.
	Data []byte
	// Format determines the object's content type and file extension.
	Format audit.Format
}

// Service uploads compliance artifacts to an S3-compatible bucket.
type Service struct {
	s3Client   *s3.Client
	bucketName string
	prefix     string
	timeNow    func() time.Time // For testability
	newID      func() string
}

// ServiceConfig holds configuration for the archive service.
type ServiceConfig struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	// Prefix is the key prefix for archived artifacts (default
	// "audit-exports").
	Prefix string
}

// NewService creates a new archive service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "audit-exports"
	}

	s3Client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Service{
		s3Client:   s3Client,
		bucketName: cfg.BucketName,
		prefix:     cfg.Prefix,
		timeNow:    time.Now,
		newID:      func() string { return uuid.New().String() },
	}, nil
}

// Store uploads the artifact and returns the object key it was stored
// under. Keys are date-partitioned:
// <prefix>/<yyyy>/<mm>/<dd>/<uuid><ext>.
func (s *Service) Store(ctx context.Context, artifact Artifact) (string, error) {
	if len(artifact.Data) == 0 {
		return "", ErrEmptyArtifact
	}

	key := s.objectKey(artifact.Format)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(artifact.Data),
		ContentType: aws.String(audit.ContentType(artifact.Format)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive artifact: %w", err)
	}

	return key, nil
}

// objectKey builds the date-partitioned object key for a new artifact.
func (s *Service) objectKey(format audit.Format) string {
	now := s.timeNow().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s%s",
		s.prefix,
		now.Year(), int(now.Month()), now.Day(),
		s.newID(),
		audit.FileExtension(format),
	)
}
