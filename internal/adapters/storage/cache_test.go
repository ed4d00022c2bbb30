package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/signalbot/internal/adapters/blob"
	"github.com/alejandrodnm/signalbot/internal/adapters/storage"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ingest"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// brokenLedger envuelve un ledger real y puede fallar los commits.
type brokenLedger struct {
	*storage.SQLiteLedger
	commitErr error
}

func (b *brokenLedger) Commit(ctx context.Context, v domain.VerifiedSignal) error {
	if b.commitErr != nil {
		return b.commitErr
	}
	return b.SQLiteLedger.Commit(ctx, v)
}

func TestCache_LoadsOnOpen(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	require.NoError(t, db.Commit(ctx, makeSignal(1, "Red", true, 60)))
	require.NoError(t, db.Commit(ctx, makeSignal(2, "Red", false, 40)))

	c, err := storage.NewCache(ctx, db)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	maxID, err := c.MaxPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), maxID)

	history, err := c.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCache_CommitAppends(t *testing.T) {
	ctx := context.Background()
	c, err := storage.NewCache(ctx, newSQLite(t))
	require.NoError(t, err)

	before, err := c.VerifiedSignals(ctx)
	require.NoError(t, err)

	v := makeSignal(1, "Green", true, 75)
	require.NoError(t, c.Commit(ctx, v))
	require.NoError(t, c.Commit(ctx, v))

	after, err := c.VerifiedSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, before, "el snapshot anterior no cambia")
	require.Len(t, after, 1)
	assert.Equal(t, v, after[0])

	maxID, err := c.MaxPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), maxID)

	// el ledger subyacente también lo tiene
	periods, err := c.Periods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}

func TestCache_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	c, err := storage.NewCache(ctx, newSQLite(t))
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, makeSignal(1, "Red", true, 50)))

	snap, err := c.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, makeSignal(2, "Green", true, 50)))

	// un append sobre el snapshot no puede pisar la caché
	snap = append(snap, makeSignal(99, "Violet", false, 0))
	assert.Len(t, snap, 2)

	fresh, err := c.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, int64(2), fresh[1].PeriodID)
}

func TestCache_FailedSQLCommitLeavesPeriodFree(t *testing.T) {
	ctx := context.Background()
	inner := &brokenLedger{SQLiteLedger: newSQLite(t), commitErr: errors.New("disk full")}
	c, err := storage.NewCache(ctx, inner)
	require.NoError(t, err)

	// la tx no llegó a escribir nada: el id sigue libre
	assert.Error(t, c.Commit(ctx, makeSignal(1, "Red", true, 50)))
	assert.Equal(t, 0, c.Len())
	maxID, err := c.MaxPeriodID(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxID)
}

func TestCache_PartialBlobCommitNeverReusesPeriod(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: blob.NewMemoryStore(), failOn: ports.TableHistorical}
	l := storage.NewBlobLedger(store, "")
	c, err := storage.NewCache(ctx, l)
	require.NoError(t, err)
	alloc := ingest.NewPeriodAllocator(c)

	idA, err := alloc.NextID(ctx)
	require.NoError(t, err)
	a := makeSignal(idA, "Red", true, 80)
	require.Error(t, c.Commit(ctx, a), "verified se escribe, historical falla")

	idB, err := alloc.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, idA+1, idB, "el id escrito a medias no se reparte otra vez")

	store.failOn = ""
	b := makeSignal(idB, "Green", false, 20)
	require.NoError(t, c.Commit(ctx, b))

	stored, err := l.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, a, stored[0])
	assert.Equal(t, b, stored[1])

	cached, err := c.VerifiedSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored, cached, "la caché refleja lo persistido")

	storedHistory, err := l.History(ctx)
	require.NoError(t, err)
	cachedHistory, err := c.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, storedHistory, cachedHistory)
	require.Len(t, storedHistory, 1)
	assert.Equal(t, "Green", storedHistory[0].Color)

	// Repair completa la fila que faltaba de A
	repaired, err := l.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired, "historical y periods de A")
}

func TestCache_RetryAfterPartialBlobCommit(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: blob.NewMemoryStore(), failOn: ports.TablePeriods}
	c, err := storage.NewCache(ctx, storage.NewBlobLedger(store, ""))
	require.NoError(t, err)

	v := makeSignal(1, "Violet", true, 90)
	require.Error(t, c.Commit(ctx, v))

	store.failOn = ""
	require.NoError(t, c.Commit(ctx, v), "el reintento de la misma señal no es un conflicto")

	assert.Equal(t, 1, c.Len())
	history, err := c.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	periods, err := c.Periods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}
