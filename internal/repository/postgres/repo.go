package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	_ "modernc.org/sqlite"             // Встраиваемая БД для локального запуска и тестов
)

// Поддерживаемые драйверы database/sql. Запросы пишутся с $N, это понимают оба.
const (
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite"
)

type Repo struct {
	db *sql.DB
}

// Open открывает пул соединений. Проверка доступности — через Ping в main.
func Open(driver, dsn string, maxConns, minConns int32) (*Repo, error) {
	if driver == "" {
		driver = DriverPgx
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(int(maxConns))
	}
	if minConns > 0 {
		db.SetMaxIdleConns(int(minConns))
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Repo{db: db}, nil
}

// NewRepo оборачивает уже открытый пул.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Ping проверяет доступность базы при старте
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repo) Close() error {
	return r.db.Close()
}
