package dedup

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/pitchwire/pitchwire/pkg/store/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	fileStore, err := file.NewStore(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = fileStore.Close(context.Background())
	})

	return NewLedger(testLogger(), fileStore)
}

func TestLedgerRecordAndRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t)

	require.NoError(t, ledger.Record(ctx, "daily-digest", "Arsenal clinch title with late winner", nil))
	require.NoError(t, ledger.Record(ctx, "daily-digest", "Keeper sent off in Madrid derby", nil))
	require.NoError(t, ledger.Record(ctx, "match-preview", "Cup final preview", nil))

	headlines, err := ledger.RecentHeadlines(ctx, "daily-digest")
	require.NoError(t, err)
	require.Len(t, headlines, 2)
	assert.Contains(t, headlines, "Arsenal clinch title with late winner")
	assert.NotContains(t, headlines, "Cup final preview")
}

func TestLedgerRecentHonorsFreshnessWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t).WithWindows(time.Millisecond, 0)

	require.NoError(t, ledger.Record(ctx, "daily-digest", "Stale story", nil))
	time.Sleep(5 * time.Millisecond)

	headlines, err := ledger.RecentHeadlines(ctx, "daily-digest")
	require.NoError(t, err)
	assert.Empty(t, headlines)
}

func TestLedgerCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t).WithWindows(0, time.Millisecond)

	require.NoError(t, ledger.Record(ctx, "daily-digest", "Old story one", nil))
	require.NoError(t, ledger.Record(ctx, "daily-digest", "Old story two", nil))
	time.Sleep(5 * time.Millisecond)

	deleted, err := ledger.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	again, err := ledger.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestLedgerRecordAllSkipsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t)

	ledger.RecordAll(ctx, "daily-digest", []string{"Headline one", "", "Headline two"})

	headlines, err := ledger.RecentHeadlines(ctx, "daily-digest")
	require.NoError(t, err)
	assert.Len(t, headlines, 2)
}

func TestNewSweeperValidatesCron(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)

	_, err := NewSweeper(testLogger(), ledger, "not a cron expression")
	require.Error(t, err)

	sweeper, err := NewSweeper(testLogger(), ledger, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSweepSchedule, sweeper.cronExpr)
}

func TestSweeperStartStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t)

	sweeper, err := NewSweeper(testLogger(), ledger, "@hourly")
	require.NoError(t, err)

	require.NoError(t, sweeper.Start(ctx))
	assert.Error(t, sweeper.Start(ctx))
	require.NoError(t, sweeper.Stop(ctx))
}
