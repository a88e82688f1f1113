// Package repository 数据持久化
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"SyncFM/core/catalog"
	"SyncFM/logger"
	"SyncFM/model"
)

// TagCache 基于 MySQL 的标签缓存，实现 catalog.MetadataCache
type TagCache struct {
	db *gorm.DB
}

// NewTagCache 创建标签缓存，使用前需调用 Migrate
func NewTagCache(db *gorm.DB) *TagCache {
	return &TagCache{db: db}
}

// Migrate 创建 track_tags 表
func (c *TagCache) Migrate() error {
	return c.db.AutoMigrate(&model.TrackTag{})
}

// Lookup 文件未变化时返回缓存的标签
func (c *TagCache) Lookup(ctx context.Context, id string, size int64, modTime time.Time) (catalog.Tags, bool) {
	var rec model.TrackTag
	err := c.db.WithContext(ctx).Where("track_id = ?", id).First(&rec).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Tag cache lookup failed", logger.String("track", id), logger.ErrorField(err))
		}
		return catalog.Tags{}, false
	}
	return cachedTags(&rec, size, modTime)
}

// cachedTags 文件大小和修改时间都一致时才命中
func cachedTags(rec *model.TrackTag, size int64, modTime time.Time) (catalog.Tags, bool) {
	if rec.Size != size || rec.ModTime != modTime.UnixNano() {
		return catalog.Tags{}, false
	}
	return catalog.Tags{Title: rec.Title, Artist: rec.Artist}, true
}

// Store 保存标签，已存在则覆盖
func (c *TagCache) Store(ctx context.Context, id string, size int64, modTime time.Time, tags catalog.Tags) error {
	return upsert(c.db.WithContext(ctx), &model.TrackTag{
		TrackID: id,
		Size:    size,
		ModTime: modTime.UnixNano(),
		Title:   tags.Title,
		Artist:  tags.Artist,
	}).Error
}

func upsert(tx *gorm.DB, rec *model.TrackTag) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"size", "mod_time", "title", "artist", "updated_at"}),
	}).Create(rec)
}
