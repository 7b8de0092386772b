package db

import "time"

// CacheEntry maps translation_cache_entries. Value holds one serialized
// cached translation; Size is len(Value) and drives eviction.
type CacheEntry struct {
	CacheKey   string    `gorm:"column:cache_key;type:varchar(128);primaryKey"`
	Value      []byte    `gorm:"column:value;not null"`
	Size       int64     `gorm:"column:size;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	AccessedAt time.Time `gorm:"column:accessed_at;not null;index"`
}

func (CacheEntry) TableName() string { return "translation_cache_entries" }

func autoMigrateModels() []any {
	return []any{
		&CacheEntry{},
	}
}
