package blob_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/signalbot/internal/adapters/blob"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := blob.NewMemoryStore()

	_, err := s.Get(ctx, "missing.csv")
	assert.ErrorIs(t, err, ports.ErrBlobNotFound)

	data := []byte("period_id\n1\n")
	require.NoError(t, s.Put(ctx, "periods.csv", data))
	data[0] = 'X' // el store guarda una copia

	got, err := s.Get(ctx, "periods.csv")
	require.NoError(t, err)
	assert.Equal(t, "period_id\n1\n", string(got))
	assert.Equal(t, []string{"periods.csv"}, s.Keys())
}

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	s, err := blob.NewDirStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, "verified_signals.csv")
	assert.ErrorIs(t, err, ports.ErrBlobNotFound)

	require.NoError(t, s.Put(ctx, "verified_signals.csv", []byte("a")))
	require.NoError(t, s.Put(ctx, "verified_signals.csv", []byte("b")))

	got, err := s.Get(ctx, "verified_signals.csv")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))

	// keys con subdirectorio (prefijo)
	require.NoError(t, s.Put(ctx, "prod/periods.csv", []byte("p")))
	got, err = s.Get(ctx, "prod/periods.csv")
	require.NoError(t, err)
	assert.Equal(t, "p", string(got))
}

func TestDirStore_RejectsEscapingKeys(t *testing.T) {
	s, err := blob.NewDirStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, s.Put(context.Background(), "../evil.csv", []byte("x")))
	_, err = s.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	s := blob.NewRedisStoreWithClient(db, "signalbot:")

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("signalbot:periods.csv").SetVal("period_id\n1\n")
		got, err := s.Get(ctx, "periods.csv")
		require.NoError(t, err)
		assert.Equal(t, "period_id\n1\n", string(got))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss maps to ErrBlobNotFound", func(t *testing.T) {
		mock.ExpectGet("signalbot:verified_signals.csv").RedisNil()
		_, err := s.Get(ctx, "verified_signals.csv")
		assert.ErrorIs(t, err, ports.ErrBlobNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		mock.ExpectGet("signalbot:periods.csv").SetErr(redis.TxFailedErr)
		_, err := s.Get(ctx, "periods.csv")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ports.ErrBlobNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("put", func(t *testing.T) {
		data := []byte("period_id\n1\n2\n")
		mock.ExpectSet("signalbot:periods.csv", data, 0).SetVal("OK")
		require.NoError(t, s.Put(ctx, "periods.csv", data))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// flakyStore falla siempre con err.
type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Get(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return nil, f.err
}

func (f *flakyStore) Put(_ context.Context, _ string, _ []byte) error {
	f.calls++
	return f.err
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{err: errors.New("r2 unavailable")}
	b := blob.NewBreaker(inner, blob.BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	})

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Put(context.Background(), "k", nil))
	}
	assert.Equal(t, "open", b.State())

	err := b.Put(context.Background(), "k", nil)
	assert.Error(t, err)
	assert.Equal(t, 3, inner.calls, "con el circuito abierto no se llama al store")
}

func TestBreaker_NotFoundIsNotAFailure(t *testing.T) {
	inner := &flakyStore{err: ports.ErrBlobNotFound}
	b := blob.NewBreaker(inner, blob.BreakerConfig{ConsecutiveFailures: 2})

	for i := 0; i < 5; i++ {
		_, err := b.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ports.ErrBlobNotFound)
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 5, inner.calls)
}

func TestBreaker_PassesThrough(t *testing.T) {
	ctx := context.Background()
	b := blob.NewBreaker(blob.NewMemoryStore(), blob.DefaultBreakerConfig())

	require.NoError(t, b.Put(ctx, "k", []byte("v")))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
