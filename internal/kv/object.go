package kv

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectOptions configures the object storage namespace.
type ObjectOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	Secure          bool
	Region          string
}

// Object stores each collection as `<prefix><key>.json` in a bucket.
type Object struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObject connects to the endpoint and creates the bucket if missing.
func NewObject(ctx context.Context, opts ObjectOptions) (*Object, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("object namespace: bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Object{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (o *Object) objectName(key string) string {
	return o.prefix + key + ".json"
}

func (o *Object) Get(ctx context.Context, key string) ([]byte, bool, error) {
	object, err := o.client.GetObject(ctx, o.bucket, o.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("get object %s: %w", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, true, nil
}

func (o *Object) Set(ctx context.Context, key string, value []byte) error {
	_, err := o.client.PutObject(ctx, o.bucket, o.objectName(key), bytes.NewReader(value), int64(len(value)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (o *Object) Close() error { return nil }
