package db_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/db/dbtest"
)

func TestHandleSharesInFlightOpen(t *testing.T) {
	var opens atomic.Int32
	slowOpen := func(ctx context.Context, d db.Driver, dsn string) (*sql.DB, error) {
		opens.Add(1)
		time.Sleep(50 * time.Millisecond)
		return db.Open(ctx, d, dsn)
	}
	h := db.NewHandle(db.DriverSQLite, dbtest.DSN(t), db.WithOpener(slowOpen))
	t.Cleanup(func() { _ = h.Close() })

	const n = 16
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		got   = make([]*sql.DB, n)
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i], errs[i] = h.DB(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], got[i])
	}
}

func TestHandleRetriesAfterFailedOpen(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, d db.Driver, dsn string) (*sql.DB, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return db.Open(ctx, d, dsn)
	}
	h := db.NewHandle(db.DriverSQLite, dbtest.DSN(t), db.WithOpener(flaky))
	t.Cleanup(func() { _ = h.Close() })

	_, err := h.DB(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	d, err := h.DB(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleCloseAndReopen(t *testing.T) {
	h := dbtest.NewHandle(t)
	ctx := context.Background()

	first, err := h.DB(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Ping(ctx))

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	second, err := h.DB(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	require.NoError(t, second.PingContext(ctx))
}

func TestOpenCreatesSchema(t *testing.T) {
	h := dbtest.NewHandle(t)
	d, err := h.DB(context.Background())
	require.NoError(t, err)

	for _, table := range []string{"users", "exams", "questions", "attempts", "event_log"} {
		var name string
		err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=$1`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := db.Open(context.Background(), db.Driver("oracle"), "")
	assert.Error(t, err)
}
