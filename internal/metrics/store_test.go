package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"smartchef/internal/database"
	"smartchef/internal/shared"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL)
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("DailyUsage", func(t *testing.T) {
		s := newTestStore(t)

		require.NoError(t, s.RecordMeta(ctx, shared.AgentMeta{
			AgentName: "RecipeGenerator",
			Usage:     shared.TokenUsage{PromptTokens: 100, CompletionTokens: 40, Model: "gemini"},
			Latency:   1200 * time.Millisecond,
			Outcome:   shared.OutcomeGenerated,
		}))
		require.NoError(t, s.RecordMeta(ctx, shared.AgentMeta{
			AgentName: "RecipeGenerator",
			Outcome:   shared.OutcomeFallback,
		}))

		usage, err := s.GetDailyUsage(ctx, 7)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, time.Now().UTC().Format("2006-01-02"), usage[0].Date)
		assert.Equal(t, 100, usage[0].TotalPrompt)
		assert.Equal(t, 40, usage[0].TotalCompletion)
		assert.Equal(t, 2, usage[0].TotalExecution)
		assert.Equal(t, 1, usage[0].Fallbacks)
	})

	t.Run("Cleanup", func(t *testing.T) {
		s := newTestStore(t)

		require.NoError(t, s.Record(ctx, ExecutionMetric{AgentName: "a", Model: "m", Timestamp: time.Now().AddDate(0, 0, -40)}))
		require.NoError(t, s.Record(ctx, ExecutionMetric{AgentName: "b", Model: "m"}))

		n, err := s.Cleanup(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		usage, err := s.GetDailyUsage(ctx, 7)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 1, usage[0].TotalExecution)
	})
}

func TestObserveGeneration(t *testing.T) {
	before := testutil.ToFloat64(generationsTotal.WithLabelValues(shared.OutcomeFallback))
	ObserveGeneration(shared.AgentMeta{Outcome: shared.OutcomeFallback})
	assert.Equal(t, before+1, testutil.ToFloat64(generationsTotal.WithLabelValues(shared.OutcomeFallback)))

	beforeWrites := testutil.ToFloat64(docstoreWriteFailures.WithLabelValues("save"))
	WriteFailed("save")
	assert.Equal(t, beforeWrites+1, testutil.ToFloat64(docstoreWriteFailures.WithLabelValues("save")))
}

func TestGetSysHealth(t *testing.T) {
	h := GetSysHealth(t.TempDir())
	assert.Positive(t, h.Goroutines)
	assert.Equal(t, "0 B", h.DataDiskSize)
}
