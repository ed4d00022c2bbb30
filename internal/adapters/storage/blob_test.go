package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/signalbot/internal/adapters/blob"
	"github.com/alejandrodnm/signalbot/internal/adapters/storage"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// failingStore falla los Put de las keys que contengan failOn.
type failingStore struct {
	*blob.MemoryStore
	failOn string
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte) error {
	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return errors.New("upload failed")
	}
	return f.MemoryStore.Put(ctx, key, data)
}

func TestBlobLedger_CommitAndRead(t *testing.T) {
	ctx := context.Background()
	l := storage.NewBlobLedger(blob.NewMemoryStore(), "test/")

	a := makeSignal(1, "Red", true, 66.67)
	b := makeSignal(2, "Green", false, 33.33)
	require.NoError(t, l.Commit(ctx, a))
	require.NoError(t, l.Commit(ctx, b))

	got, err := l.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0])
	assert.Equal(t, b, got[1])

	history, err := l.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, a.HistoricalRecord(), history[0])

	periods, err := l.Periods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, int64(2), periods[1].PeriodID)
}

func TestBlobLedger_EmptyStore(t *testing.T) {
	ctx := context.Background()
	l := storage.NewBlobLedger(blob.NewMemoryStore(), "")

	maxID, err := l.MaxPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxID)

	tbl, err := l.ReadTable(ctx, ports.TableVerified)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, "period_id", tbl.Columns[0])
}

func TestBlobLedger_UnknownTable(t *testing.T) {
	l := storage.NewBlobLedger(blob.NewMemoryStore(), "")
	_, err := l.ReadTable(context.Background(), "trades")
	assert.Error(t, err)
}

func TestBlobLedger_CommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := storage.NewBlobLedger(blob.NewMemoryStore(), "")

	v := makeSignal(4, "Red", true, 90)
	require.NoError(t, l.Commit(ctx, v))
	require.NoError(t, l.Commit(ctx, v))

	got, err := l.VerifiedSignals(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	history, err := l.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBlobLedger_PartialFailureNeverRepeatsPeriod(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: blob.NewMemoryStore(), failOn: ports.TablePeriods}
	l := storage.NewBlobLedger(store, "")

	// verified y historical se escriben, periods falla
	err := l.Commit(ctx, makeSignal(1, "Red", true, 50))
	require.Error(t, err)

	maxID, err := l.MaxPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), maxID, "el id ya usado en verified no se reasigna")

	// el reintento completa las tablas sin duplicar
	store.failOn = ""
	require.NoError(t, l.Commit(ctx, makeSignal(1, "Red", true, 50)))

	got, err := l.VerifiedSignals(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	periods, err := l.Periods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}

func TestBlobLedger_DifferentSignalOnUsedPeriodIsConflict(t *testing.T) {
	ctx := context.Background()
	l := storage.NewBlobLedger(blob.NewMemoryStore(), "")

	a := makeSignal(1, "Red", true, 50)
	require.NoError(t, l.Commit(ctx, a))

	err := l.Commit(ctx, makeSignal(1, "Green", false, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrPeriodConflict)

	got, err := l.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0])

	history, err := l.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Red", history[0].Color, "historical no recibe la fila de la otra señal")
}

func TestBlobLedger_Repair(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: blob.NewMemoryStore(), failOn: ports.TableHistorical}
	l := storage.NewBlobLedger(store, "")

	require.Error(t, l.Commit(ctx, makeSignal(1, "Red", true, 50)))
	require.Error(t, l.Commit(ctx, makeSignal(2, "Green", false, 50)))

	store.failOn = ""
	n, err := l.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "2 filas de history + 2 de periods")

	history, err := l.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	periods, err := l.Periods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 2)

	n, err = l.Repair(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "repair es idempotente")
}

func TestBlobLedger_ReadsLegacyCSV(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	l := storage.NewBlobLedger(store, "")

	// columnas en otro orden, sin source, timestamp legacy y period_id float
	legacy := "timestamp,coin,color,number,direction,quantity,period_id,verified,confidence\n" +
		"2025-03-01 12:00:00,ETH,Red,1,Red,2.0,3.0,True,66.67\n" +
		"2025-03-01 12:01:00,ETH,Green,2,Green,x,4,False,10\n"
	require.NoError(t, store.Put(ctx, l.Key(ports.TableVerified), []byte(legacy)))

	got, err := l.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(3), got[0].PeriodID)
	assert.True(t, got[0].Verified)
	assert.Equal(t, 2.0, got[0].Quantity)
	assert.Equal(t, 66.67, got[0].Confidence)
	assert.Equal(t, 12, got[0].Timestamp.Hour())
	assert.Equal(t, "", got[0].Source)

	assert.False(t, got[1].Verified)
	assert.Equal(t, 1.0, got[1].Quantity, "cantidad ilegible → 1.0")

	maxID, err := l.MaxPeriodID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), maxID)
}

func TestBlobLedger_WriteTableRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := storage.NewBlobLedger(blob.NewMemoryStore(), "")

	tbl := storage.NewTable(ports.TablePeriods)
	tbl.Rows = [][]string{{"1"}, {"2"}, {"5"}}
	require.NoError(t, l.WriteTable(ctx, ports.TablePeriods, tbl))

	back, err := l.ReadTable(ctx, ports.TablePeriods)
	require.NoError(t, err)
	assert.Equal(t, tbl, back)

	ids, maxID, err := back.PeriodIDs()
	require.NoError(t, err)
	assert.Equal(t, int64(5), maxID)
	assert.True(t, ids[2])
	assert.Equal(t, "5", back.Get(2, "period_id"))
	assert.Equal(t, "", back.Get(0, "nope"))
}
