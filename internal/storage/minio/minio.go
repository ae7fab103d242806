// Package minio resolves the default avatar stored in a MinIO/S3 bucket.
package minio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sessionauth/internal/config"
)

// A fixed region skips the bucket-location lookup.
const defaultRegion = "us-east-1"

type Avatars struct {
	client *mclient.Client
	bucket string
	object string
}

// New creates a MinIO client for the configured endpoint. The endpoint may carry
// an http or https scheme, which then overrides UseSSL.
func New(cfg config.AvatarsConfig) (*Avatars, error) {
	const op = "storage.minio.New"

	endpoint := cfg.Endpoint
	secure := cfg.UseSSL

	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Avatars{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
	}, nil
}

// DefaultAvatarURL checks that the default avatar object exists and returns its public URL.
func (a *Avatars) DefaultAvatarURL(ctx context.Context) (string, error) {
	const op = "storage.minio.DefaultAvatarURL"

	if _, err := a.client.StatObject(ctx, a.bucket, a.object, mclient.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return a.client.EndpointURL().JoinPath(a.bucket, a.object).String(), nil
}
