package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/studex/apiserver/config"
)

// MinioClient stores listing media in a MinIO (or any S3-compatible) bucket.
type MinioClient struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("minio access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(cfg.PublicURL)
	if base == "" {
		base = client.EndpointURL().String()
	}
	return &MinioClient{client: client, bucket: cfg.Bucket, publicURL: base}, nil
}

// EnsureBucket creates the bucket when missing and grants anonymous reads
// under the listing prefix so stored URLs resolve without signing.
func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}

	policy, err := publicReadPolicy(m.bucket, projectPrefix)
	if err != nil {
		return err
	}
	return m.client.SetBucketPolicy(ctx, m.bucket, policy)
}

func (m *MinioClient) Put(ctx context.Context, obj Object) error {
	_, err := m.client.PutObject(ctx, m.bucket, obj.Key, obj.Body, obj.Size, minio.PutObjectOptions{
		ContentType:        obj.ContentType,
		ContentDisposition: obj.ContentDisposition(),
		CacheControl:       immutableCacheControl,
		UserMetadata:       map[string]string{"original-name": obj.FileName},
	})
	return err
}

// URL returns the path-style address of key behind the public endpoint.
func (m *MinioClient) URL(key string) string {
	return publicURL(m.publicURL, m.bucket, key)
}

func (m *MinioClient) Bucket() string {
	return m.bucket
}

type policyStatement struct {
	Effect    string              `json:"Effect"`
	Principal map[string][]string `json:"Principal"`
	Action    []string            `json:"Action"`
	Resource  []string            `json:"Resource"`
}

type bucketPolicy struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

func publicReadPolicy(bucket, prefix string) (string, error) {
	raw, err := json.Marshal(bucketPolicy{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string][]string{"AWS": {"*"}},
			Action:    []string{"s3:GetObject"},
			Resource:  []string{fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, prefix)},
		}},
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
