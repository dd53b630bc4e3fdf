// Package postgres opens the catalog on PostgreSQL through the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/store"
)

const defaultDSN = "postgres://localhost/sciencemap?sslmode=disable"

const uniqueViolation = "23505"

func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	sqlDB := stdlib.OpenDB(*connConfig)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return openWith(sqlDB)
}

func openWith(sqlDB *sql.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard, TranslateError: true})
}

// Dialect locks rows read inside write transactions.
func Dialect() store.Dialect {
	return store.Dialect{Name: "postgres", LockRows: true, IsUniqueViolation: IsUniqueViolation}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
