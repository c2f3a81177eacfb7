package services

import (
	"context"
	"fmt"

	"paper-kb/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// getOrCreate löst einen natürlichen Schlüssel zu einer ID auf:
// Cache, dann SELECT, dann INSERT ... ON CONFLICT DO NOTHING und bei einem
// Konflikt genau ein erneutes SELECT.
func getOrCreate[T any](ctx context.Context, db *gorm.DB, cache *EntityCache, key CacheKey, match map[string]any, row *T, idOf func(*T) uint) (uint, error) {
	if id, ok := cache.Get(key); ok {
		return id, nil
	}

	id, err := selectID[T](ctx, db, match)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		cache.Put(key, id)
		return id, nil
	}

	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return 0, apperr.ClassifyDB(res.Error)
	}
	if res.RowsAffected > 0 && idOf(row) != 0 {
		cache.Put(key, idOf(row))
		return idOf(row), nil
	}

	// Ein paralleler Schreiber war schneller.
	id, err = selectID[T](ctx, db, match)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: %s %q nach Konflikt nicht auffindbar", apperr.ErrConstraintViolation, key.Kind, key.Value)
	}
	cache.Put(key, id)
	return id, nil
}

func selectID[T any](ctx context.Context, db *gorm.DB, match map[string]any) (uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(new(T)).Where(match).Order("id").Limit(1).Pluck("id", &ids).Error
	if err != nil {
		return 0, apperr.ClassifyDB(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}
