package db

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Provider hands out the shared connection pool, opening it on first use.
type Provider interface {
	DB(ctx context.Context) (*sql.DB, error)
}

type OpenFunc func(ctx context.Context, driver Driver, dsn string) (*sql.DB, error)

// Handle is a lazily opened, memoized *sql.DB. Concurrent first callers share
// one in-flight open. A failed open is not remembered, so the next call
// tries again. Close drops the pool; a later DB call reopens it.
type Handle struct {
	driver Driver
	dsn    string
	open   OpenFunc

	mu    sync.Mutex
	db    *sql.DB
	group singleflight.Group
}

type HandleOption func(*Handle)

func WithOpener(fn OpenFunc) HandleOption { return func(h *Handle) { h.open = fn } }

func NewHandle(driver Driver, dsn string, opts ...HandleOption) *Handle {
	h := &Handle{driver: driver, dsn: dsn, open: Open}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handle) current() *sql.DB {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db
}

func (h *Handle) DB(ctx context.Context) (*sql.DB, error) {
	if db := h.current(); db != nil {
		return db, nil
	}
	v, err, _ := h.group.Do("open", func() (interface{}, error) {
		if db := h.current(); db != nil {
			return db, nil
		}
		// waiters share this call; one caller's cancellation must not fail the rest
		db, err := h.open(context.WithoutCancel(ctx), h.driver, h.dsn)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.db = db
		h.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "db: open %s", h.driver)
	}
	return v.(*sql.DB), nil
}

// Ping opens the pool if needed and checks connectivity.
func (h *Handle) Ping(ctx context.Context) error {
	db, err := h.DB(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (h *Handle) Close() error {
	h.mu.Lock()
	db := h.db
	h.db = nil
	h.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
