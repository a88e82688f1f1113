package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"SyncFM/config"
	"SyncFM/logger"
)

// MinioStore 从 MinIO 存储桶读取音频，对象名为 prefix + 歌曲 ID
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
	exts   map[string]struct{}
}

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// SyncStats 同步结果
type SyncStats struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

// NewMinioStore 初始化 MinIO 客户端并确保存储桶存在
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	s := &MinioStore{
		client: client,
		bucket: cfg.MinioBucket,
		prefix: cfg.MinioPrefix,
		exts:   extensionSet(cfg.AudioExtensions),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.ensureBucket(ctx, cfg.MinioRegion); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	logger.Info("Created bucket", logger.String("bucket", s.bucket))
	return nil
}

func (s *MinioStore) key(id string) string {
	return s.prefix + id
}

func (s *MinioStore) Open(ctx context.Context, id string) (*Audio, error) {
	id, err := CleanID(id)
	if err != nil {
		return nil, err
	}
	if !hasExtension(s.exts, id) {
		return nil, ErrNotFound
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", id, err)
	}

	ct := info.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = ContentType(id)
	}
	return &Audio{
		Content:     obj,
		Size:        info.Size,
		ModTime:     info.LastModified,
		ContentType: ct,
	}, nil
}

// Sync 上传存储桶中缺失或大小不一致的音频文件
func (s *MinioStore) Sync(ctx context.Context, root string) (SyncStats, error) {
	var stats SyncStats
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !hasExtension(s.exts, d.Name()) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		key := s.key(filepath.ToSlash(rel))

		if obj, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err == nil && obj.Size == info.Size() {
			stats.Skipped++
			return nil
		}
		if _, err := s.client.FPutObject(ctx, s.bucket, key, p, minio.PutObjectOptions{ContentType: ContentType(p)}); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		stats.Uploaded++
		stats.Bytes += info.Size()
		logger.Info("Uploaded track", logger.String("key", key), logger.Int64("size", info.Size()))
		return nil
	})
	return stats, err
}

// Stats 统计存储桶中的对象
func (s *MinioStore) Stats(ctx context.Context) (BucketStats, error) {
	var stats BucketStats
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if object.Err != nil {
			return stats, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return stats, nil
}
