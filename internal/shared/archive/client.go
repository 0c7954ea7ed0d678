// Package archive 把已处理的审核记录归档到 MinIO 对象存储
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kb-auditor/internal/config"
)

// ErrNotArchived 对象不存在
var ErrNotArchived = errors.New("record not archived")

const defaultBucket = "audit-archive"

// Client 归档 bucket 的 MinIO 访问
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 创建 MinIO 客户端，不做网络调用
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive: minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("archive: minio credentials are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: init minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	return &Client{mc: mc, bucket: bucket}, nil
}

// Bucket 归档 bucket 名称
func (c *Client) Bucket() string { return c.bucket }

// EnsureBucket 归档 bucket 不存在时创建
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("archive: check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("archive: create bucket %s: %w", c.bucket, err)
	}
	log.Printf("[Archive/MinIO] Created bucket %s", c.bucket)
	return nil
}

// Put 写入一个完整对象，同名对象被覆盖
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}

// Get 读取整个对象；对象不存在时返回 ErrNotArchived
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotArchived, key)
		}
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}
