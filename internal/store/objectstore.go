package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore uploads each full record as a JSON object to an S3-compatible
// bucket.
type ObjectStore struct {
	mc     *minio.Client
	bucket string
}

// NewObjectStore builds a client for endpoint. It does not contact the
// server; call EnsureBucket for that.
func NewObjectStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*ObjectStore, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &ObjectStore{mc: mc, bucket: bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	ok, err := o.mc.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", o.bucket, err)
	}
	if ok {
		return nil
	}
	return o.mc.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{})
}

func (o *ObjectStore) Save(ctx context.Context, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	_, err = o.mc.PutObject(ctx, o.bucket, ObjectKey(rec), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// ObjectKey is where rec is stored inside the bucket. Local audits without
// an address are grouped under "local".
func ObjectKey(rec Record) string {
	network := rec.Network
	if network == "" {
		network = "local"
	}
	subject := strings.ToLower(rec.Address)
	if subject == "" {
		subject = rec.Mode
	}
	return path.Join("reports", network, subject, rec.CreatedAt.Format("20060102T150405Z")+"-"+rec.ID.String()+".json")
}
