package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sifan077/clicktrail/internal/app/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGorm returns a gorm.DB that borrows its connections from pool, so the
// pool limits apply to every repository.
func NewGorm(pool *pgxpool.Pool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}
	return db, nil
}

// Models lists every table owned by the service.
func Models() []interface{} {
	return []interface{}{
		&model.Post{},
		&model.RedirectTarget{},
		&model.HitEvent{},
		&model.Rating{},
	}
}

// AutoMigrate uses GORM to perform schema migrations for the provided models.
// Migrations only add tables, columns and indexes.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if db == nil || len(models) == 0 {
		return nil
	}

	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}

	return nil
}
