package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	PublicBase string
}

// S3 - хранилище в S3-совместимом бакете
type S3 struct {
	conf   S3Config
	client *minio.Client
}

func NewS3(conf S3Config) (*S3, error) {
	if conf.Endpoint == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3{conf: conf, client: client}, nil
}

func (s *S3) Upload(ctx context.Context, data []byte, key, folder string) (*Object, error) {
	objectName := path.Join(folder, key)
	_, err := s.client.PutObject(ctx, s.conf.Bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put object %s: %w", objectName, err)
	}
	return &Object{
		URL:    s.ObjectURL(objectName),
		FileID: objectName,
		Key:    key,
		Folder: folder,
	}, nil
}

func (s *S3) Delete(ctx context.Context, obj Object) error {
	objectName := obj.FileID
	if objectName == "" {
		objectName = path.Join(obj.Folder, obj.Key)
	}
	if err := s.client.RemoveObject(ctx, s.conf.Bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3 remove object %s: %w", objectName, err)
	}
	return nil
}

// ObjectURL возвращает публичный URL объекта в бакете
func (s *S3) ObjectURL(objectName string) string {
	base := strings.TrimRight(s.conf.PublicBase, "/")
	if base == "" {
		scheme := "http"
		if s.conf.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + s.conf.Endpoint
	}
	return base + "/" + s.conf.Bucket + "/" + objectName
}
