package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

const evictionChunk = 256

// Get returns the stored value for key and refreshes its access time.
func (p *Pool) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if p == nil || p.gdb == nil {
		return nil, false, fmt.Errorf("database pool is not initialized")
	}

	var entries []CacheEntry
	res := p.gdb.WithContext(ctx).
		Where("cache_key = ?", key).
		Limit(1).
		Find(&entries)
	if res.Error != nil {
		return nil, false, fmt.Errorf("select cache entry: %w", res.Error)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	// Access time feeds eviction only; a failed refresh must not turn a hit into an error.
	_ = p.gdb.WithContext(ctx).
		Model(&CacheEntry{}).
		Where("cache_key = ?", key).
		Update("accessed_at", p.now()).Error

	return entries[0].Value, true, nil
}

// Put upserts key and evicts least recently accessed entries while the table
// is above its size limit.
func (p *Pool) Put(ctx context.Context, key string, value []byte) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	now := p.now()
	entry := CacheEntry{
		CacheKey:   key,
		Value:      value,
		Size:       int64(len(value)),
		CreatedAt:  now,
		AccessedAt: now,
	}
	err := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "size", "accessed_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}

	if _, err := p.evict(ctx); err != nil {
		return err
	}
	return nil
}

// TotalSize sums the stored value sizes.
func (p *Pool) TotalSize(ctx context.Context) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	var total int64
	err := p.gdb.WithContext(ctx).
		Model(&CacheEntry{}).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum cache entry sizes: %w", err)
	}
	return total, nil
}

func (p *Pool) evict(ctx context.Context) (int, error) {
	if p.sizeLimit <= 0 {
		return 0, nil
	}

	total, err := p.TotalSize(ctx)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for total > p.sizeLimit {
		var victims []CacheEntry
		err := p.gdb.WithContext(ctx).
			Select("cache_key", "size").
			Order("accessed_at ASC").
			Order("cache_key ASC").
			Limit(evictionChunk).
			Find(&victims).Error
		if err != nil {
			return evicted, fmt.Errorf("select eviction candidates: %w", err)
		}
		if len(victims) == 0 {
			return evicted, nil
		}

		keys := make([]string, 0, len(victims))
		for _, victim := range victims {
			if total <= p.sizeLimit {
				break
			}
			keys = append(keys, victim.CacheKey)
			total -= victim.Size
		}

		res := p.gdb.WithContext(ctx).
			Where("cache_key IN ?", keys).
			Delete(&CacheEntry{})
		if res.Error != nil {
			return evicted, fmt.Errorf("delete evicted cache entries: %w", res.Error)
		}
		evicted += int(res.RowsAffected)
	}
	return evicted, nil
}
