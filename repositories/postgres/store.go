// Package postgres reads and writes the relay's state in the database shared
// with the CRUD layer. Tables are owned by the CRUD layer's migrations.
package postgres

import (
	"chat-relay/errors"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Open connects and pings the database.
func Open(dsn string, opts Options) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty database url", errors.ErrTransientStore)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", errors.ErrTransientStore, err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", errors.ErrTransientStore, err)
	}
	return db, nil
}

func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	default:
		return fmt.Errorf("%w: %s: %v", errors.ErrTransientStore, what, err)
	}
}

// requireAffected turns an UPDATE or DELETE that matched nothing into ErrNotFound.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, what)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	}
	return nil
}
