// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package s3store implements blobstore.Blobs on any S3-compatible object
// store.
package s3store

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"sol.dev/sol/registry/blobstore"
)

var (
	// Error is an s3 store error.
	Error = errs.Class("s3store")

	mon = monkit.Package()
)

// Config holds the connection settings for the object store.
type Config struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"useSSL"`
}

// Store implements blobstore.Blobs over an S3-compatible endpoint.
type Store struct {
	client *minio.Client
	bucket string
}

// Open connects to the object store and ensures the bucket exists.
func Open(ctx context.Context, config Config) (*Store, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !exists {
		err = client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{})
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	return &Store{client: client, bucket: config.Bucket}, nil
}

// Put stores data under path.
func (store *Store) Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.client.PutObject(ctx, store.bucket, path,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: metadata,
		})
	return Error.Wrap(err)
}

// Get returns the bytes stored under path.
func (store *Store) Get(ctx context.Context, path string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	object, err := store.client.GetObject(ctx, store.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(object.Close())) }()

	data, err := io.ReadAll(object)
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound.New("%q", path)
		}
		return nil, Error.Wrap(err)
	}
	return data, nil
}

// Exists reports whether a blob exists at path.
func (store *Store) Exists(ctx context.Context, path string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.client.StatObject(ctx, store.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, Error.Wrap(err)
	}
	return true, nil
}

// Stat returns metadata for the blob at path.
func (store *Store) Stat(ctx context.Context, path string) (_ blobstore.Meta, err error) {
	defer mon.Task()(&ctx)(&err)

	info, err := store.client.StatObject(ctx, store.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return blobstore.Meta{}, blobstore.ErrNotFound.New("%q", path)
		}
		return blobstore.Meta{}, Error.Wrap(err)
	}

	return blobstore.Meta{
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// Delete removes the blob at path.
func (store *Store) Delete(ctx context.Context, path string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return Error.Wrap(store.client.RemoveObject(ctx, store.bucket, path, minio.RemoveObjectOptions{}))
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
