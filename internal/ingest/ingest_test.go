package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/signalbot/internal/adapters/blob"
	"github.com/alejandrodnm/signalbot/internal/adapters/storage"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ingest"
	"github.com/alejandrodnm/signalbot/internal/parser"
	"github.com/alejandrodnm/signalbot/internal/ports"
	"github.com/alejandrodnm/signalbot/internal/verifier"
)

type fixedPeriods struct {
	maxID int64
	err   error
}

func (f fixedPeriods) MaxPeriodID(_ context.Context) (int64, error) { return f.maxID, f.err }

func TestPeriodAllocator(t *testing.T) {
	ctx := context.Background()

	id, err := ingest.NewPeriodAllocator(fixedPeriods{}).NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "ledger vacío → 1")

	id, err = ingest.NewPeriodAllocator(fixedPeriods{maxID: 5}).NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), id)

	_, err = ingest.NewPeriodAllocator(fixedPeriods{err: errors.New("down")}).NextID(ctx)
	assert.Error(t, err)
}

func TestPeriodAllocator_SkipsGaps(t *testing.T) {
	sqlite, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)

	ledgers := map[string]ports.Ledger{
		"sqlite": sqlite,
		"blob":   storage.NewBlobLedger(blob.NewMemoryStore(), ""),
	}
	for name, l := range ledgers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, err := storage.NewCache(ctx, l)
			require.NoError(t, err)
			t.Cleanup(func() { c.Close() })

			for _, id := range []int64{1, 2, 5} {
				v := domain.VerifiedSignal{Signal: domain.Signal{PeriodID: id, Coin: "ETH", Color: "Red", Number: "1", Quantity: 1}}
				require.NoError(t, c.Commit(ctx, v))
			}

			id, err := ingest.NewPeriodAllocator(c).NextID(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(6), id, "max + 1, no cuenta de filas")
		})
	}
}

// recorder implementa IngestObserver y Publisher.
type recorder struct {
	mu        sync.Mutex
	dropped   []string
	committed []domain.VerifiedSignal
	failed    int
	retried   int
	published []domain.VerifiedSignal
}

func (r *recorder) MessageDropped(_, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, reason)
}

func (r *recorder) SignalCommitted(v domain.VerifiedSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, v)
}

func (r *recorder) CommitFailed(string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *recorder) CommitRetried(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried++
}

func (r *recorder) Publish(_ context.Context, v domain.VerifiedSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, v)
}

func newCache(t *testing.T) *storage.Cache {
	t.Helper()
	db, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	c, err := storage.NewCache(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func newPipeline(t *testing.T, ledger *storage.Cache, rec *recorder) *ingest.Pipeline {
	t.Helper()
	cfg := ingest.DefaultConfig()
	cfg.CommitBackoff = time.Millisecond
	return ingest.New(cfg,
		parser.New(parser.DefaultConfig()),
		verifier.NewSeeded(ledger, 1),
		ledger, rec, rec)
}

func msg(text string) domain.Message {
	return domain.Message{Source: "@ETHGPT60s_bot", Text: text, ReceivedAt: time.Now().UTC()}
}

func TestPipeline_CommitsParsedSignal(t *testing.T) {
	ctx := context.Background()
	ledger := newCache(t)
	rec := &recorder{}
	p := newPipeline(t, ledger, rec)

	v, ok, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 3 Quantity: 2x"))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int64(1), v.PeriodID)
	assert.Equal(t, "Red", v.Color)
	assert.Equal(t, 2.0, v.Quantity)
	assert.Equal(t, 50.0, v.Confidence, "histórico vacío → prior 0.5")

	rows, err := ledger.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, v, rows[0])

	history, err := ledger.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, v.Verified, history[0].Result)

	assert.Len(t, rec.committed, 1)
	assert.Len(t, rec.published, 1)
}

func TestPipeline_DropsNonSignals(t *testing.T) {
	ledger := newCache(t)
	rec := &recorder{}
	p := newPipeline(t, ledger, rec)

	_, ok, err := p.OnMessage(context.Background(), msg("good morning traders"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"no_signal"}, rec.dropped)
	assert.Equal(t, 0, ledger.Len())
}

func TestPipeline_PeriodIDsAreSequential(t *testing.T) {
	ctx := context.Background()
	ledger := newCache(t)
	p := newPipeline(t, ledger, &recorder{})

	for i := 1; i <= 5; i++ {
		v, ok, err := p.OnMessage(ctx, msg("Trade: 🔴 Red ✔\nRecommended quantity: x1"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(i), v.PeriodID)
	}
}

func TestPipeline_ConcurrentMessagesGetUniqueIDs(t *testing.T) {
	ctx := context.Background()
	ledger := newCache(t)
	p := newPipeline(t, ledger, &recorder{})

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := p.OnMessage(ctx, msg(fmt.Sprintf("Coin: ETH Color: Green Number: %d Quantity: 1", i%10)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rows, err := ledger.VerifiedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, rows, n)

	seen := make(map[int64]bool)
	for _, r := range rows {
		assert.False(t, seen[r.PeriodID], "period_id %d repetido", r.PeriodID)
		seen[r.PeriodID] = true
	}
	for id := int64(1); id <= n; id++ {
		assert.True(t, seen[id], "falta period_id %d", id)
	}
}

func TestPipeline_VerifierSeesPreviousCommits(t *testing.T) {
	ctx := context.Background()
	ledger := newCache(t)
	p := newPipeline(t, ledger, &recorder{})

	first, _, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 1 Quantity: 1"))
	require.NoError(t, err)
	second, _, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 1 Quantity: 1"))
	require.NoError(t, err)

	// con una sola fila previa la probabilidad es 0 o 1
	if first.Verified {
		assert.Equal(t, 100.0, second.Confidence)
	} else {
		assert.Equal(t, 0.0, second.Confidence)
	}
}

// flakyLedger falla los primeros n commits con err, o "upload failed" si es nil.
type flakyLedger struct {
	*storage.Cache
	fails int
	calls int
	err   error
}

func (f *flakyLedger) Commit(ctx context.Context, v domain.VerifiedSignal) error {
	f.calls++
	if f.calls <= f.fails {
		if f.err != nil {
			return f.err
		}
		return errors.New("upload failed")
	}
	return f.Cache.Commit(ctx, v)
}

func TestPipeline_RetriesCommit(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyLedger{Cache: newCache(t), fails: 2}
	rec := &recorder{}
	cfg := ingest.Config{CommitAttempts: 5, CommitBackoff: time.Millisecond, HighConfidence: 75}
	p := ingest.New(cfg, parser.New(parser.DefaultConfig()), verifier.NewSeeded(ledger, 3), ledger, rec)

	v, ok, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 1 Quantity: 1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v.PeriodID)
	assert.Equal(t, 3, ledger.calls)
	assert.Equal(t, 2, rec.retried)
	assert.Equal(t, 1, ledger.Len())
}

func TestPipeline_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyLedger{Cache: newCache(t), fails: 100}
	rec := &recorder{}
	cfg := ingest.Config{CommitAttempts: 3, CommitBackoff: time.Millisecond}
	p := ingest.New(cfg, parser.New(parser.DefaultConfig()), verifier.NewSeeded(ledger, 3), ledger, rec, rec)

	_, ok, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 1 Quantity: 1"))
	require.Error(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, ledger.calls)
	assert.Equal(t, 1, rec.failed)
	assert.Empty(t, rec.published)

	// el siguiente mensaje reutiliza el id que no llegó a persistirse
	ledger.fails = 0
	ledger.calls = 0
	v, _, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 1 Quantity: 1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.PeriodID)
}

func TestPipeline_CommitHonorsContext(t *testing.T) {
	ledger := &flakyLedger{Cache: newCache(t), fails: 100}
	cfg := ingest.Config{CommitAttempts: 5, CommitBackoff: time.Hour}
	p := ingest.New(cfg, parser.New(parser.DefaultConfig()), verifier.NewSeeded(ledger, 3), ledger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 1 Quantity: 1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPipeline_PeriodConflictIsNotRetried(t *testing.T) {
	ctx := context.Background()
	conflict := fmt.Errorf("verified_signals: period 1: %w", ports.ErrPeriodConflict)
	ledger := &flakyLedger{Cache: newCache(t), fails: 100, err: conflict}
	rec := &recorder{}
	cfg := ingest.Config{CommitAttempts: 5, CommitBackoff: time.Millisecond}
	p := ingest.New(cfg, parser.New(parser.DefaultConfig()), verifier.NewSeeded(ledger, 3), ledger, rec, rec)

	_, ok, err := p.OnMessage(ctx, msg("Coin: ETH Color: Red Number: 1 Quantity: 1"))
	require.Error(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ports.ErrPeriodConflict)
	assert.Equal(t, 1, ledger.calls)
	assert.Zero(t, rec.retried)
	assert.Empty(t, rec.published)
}
