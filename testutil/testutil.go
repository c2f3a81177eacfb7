// Package testutil stellt eine migrierte SQLite-Datenbank und Seed-Helfer für Tests bereit.
package testutil

import (
	"path/filepath"
	"testing"

	"paper-kb/models"
	"paper-kb/storage"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// DB öffnet eine frische SQLite-Datenbank im temporären Verzeichnis des Tests.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := storage.OpenSQLite(filepath.Join(tb.TempDir(), "test.db"))
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func Logger(tb testing.TB) *zap.Logger {
	return zaptest.NewLogger(tb, zaptest.Level(zap.WarnLevel))
}

func Ptr[T any](v T) *T { return &v }

// SeedWork legt eine Arbeit direkt an, ohne Importer.
func SeedWork(tb testing.TB, db *gorm.DB, w models.Work) models.Work {
	tb.Helper()
	if err := db.Create(&w).Error; err != nil {
		tb.Fatalf("seed work: %v", err)
	}
	return w
}

// Count zählt die Zeilen eines Modells.
func Count(tb testing.TB, db *gorm.DB, model any, where ...any) int64 {
	tb.Helper()
	var n int64
	q := db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	if err := q.Count(&n).Error; err != nil {
		tb.Fatalf("count: %v", err)
	}
	return n
}
