package services

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// StorageService stores uploaded files in an S3-compatible bucket and hands
// back opaque locations plus presigned download URLs.
type StorageService struct {
	s3Client *s3.S3
	bucket   string
	baseURL  string
}

// NewStorageService configures the S3 client from S3_REGION, S3_ENDPOINT,
// S3_ACCESS_KEY, S3_SECRET_KEY, S3_BUCKET and S3_PUBLIC_URL.
func NewStorageService() (*StorageService, error) {
	region := os.Getenv("S3_REGION")
	endpoint := os.Getenv("S3_ENDPOINT")
	accessKey := os.Getenv("S3_ACCESS_KEY")
	secretKey := os.Getenv("S3_SECRET_KEY")
	bucket := os.Getenv("S3_BUCKET")

	if region == "" || endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("missing required S3 configuration environment variables")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(region),
		Endpoint:         aws.String(endpoint),
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		bucket:   bucket,
		baseURL:  os.Getenv("S3_PUBLIC_URL"),
	}, nil
}

// Save uploads the bytes and returns the stored object's location.
func (s *StorageService) Save(path string, data []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if _, err := s.s3Client.PutObject(input); err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", path, err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, path)
	log.Printf("File stored at %s", location)
	return location, nil
}

// DownloadURL resolves a stored location ("s3://bucket/key") to a presigned
// download URL.
func (s *StorageService) DownloadURL(location string) (string, error) {
	key := strings.TrimPrefix(location, fmt.Sprintf("s3://%s/", s.bucket))
	return s.PresignedURL(key)
}

// PresignedURL returns a time-limited download URL for the stored object.
func (s *StorageService) PresignedURL(path string) (string, error) {
	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	url, err := req.Presign(time.Hour)
	if err != nil {
		return "", fmt.Errorf("failed to presign URL for %s: %w", path, err)
	}
	return url, nil
}
