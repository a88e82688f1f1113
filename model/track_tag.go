package model

import "time"

// TrackTag is a cached tag read, valid while the file keeps the same size
// and modification time.
type TrackTag struct {
	TrackID   string `gorm:"primaryKey;size:512"`
	Size      int64  `gorm:"not null"`
	ModTime   int64  `gorm:"not null"` // unix nanoseconds
	Title     string `gorm:"size:512"`
	Artist    string `gorm:"size:512"`
	UpdatedAt time.Time
}

// TableName overrides the default table name.
func (TrackTag) TableName() string {
	return "track_tags"
}
