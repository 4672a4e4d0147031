package table

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expgrid/domain"
)

func TestClaimTransitionsRowToRunning(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{{"value": 1, "exponent": 3}})
	require.NoError(t, err)

	claimed, err := m.Claim(ctx, "worker-a", false)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, int64(1), claimed.ID)
	assert.Equal(t, map[string]interface{}{"value": int64(1), "exponent": int64(3)}, claimed.Params)

	row := rowByID(t, m, claimed.ID)
	assert.Equal(t, "running", row["status"])
	assert.Equal(t, "worker-a", row["worker"])
	assert.NotEmpty(t, row["start_time"])
	assert.Nil(t, row["end_time"])
}

func TestClaimDeterministicOrder(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{
		{"value": 10, "exponent": 1},
		{"value": 20, "exponent": 2},
		{"value": 30, "exponent": 3},
	})
	require.NoError(t, err)

	for want := int64(1); want <= 3; want++ {
		claimed, err := m.Claim(ctx, "worker-a", false)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, want, claimed.ID, "declaration order claims rows by identity")
	}
}

func TestClaimRandomOrderCoversAllRows(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{
		{"value": 1, "exponent": 1},
		{"value": 2, "exponent": 2},
		{"value": 3, "exponent": 3},
	})
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for i := 0; i < 3; i++ {
		claimed, err := m.Claim(ctx, "worker-a", true)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.False(t, seen[claimed.ID], "row %d claimed twice", claimed.ID)
		seen[claimed.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestClaimNoOpenRow(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	claimed, err := m.Claim(context.Background(), "worker-a", false)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimRaceSingleRow(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{{"value": 1, "exponent": 1}})
	require.NoError(t, err)

	results := make([]*domain.Experiment, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Claim(ctx, "racer", false)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var won int
	for _, r := range results {
		if r != nil {
			won++
			assert.Equal(t, int64(1), r.ID)
		}
	}
	assert.Equal(t, 1, won, "exactly one racer claims the row, the other sees none")
}

func TestWriteResultsPartialWrites(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{{"value": 1, "exponent": 1}})
	require.NoError(t, err)
	claimed, err := m.Claim(ctx, "worker-a", false)
	require.NoError(t, err)

	require.NoError(t, m.WriteResults(ctx, claimed.ID, map[string]interface{}{"sin": 0.5}))
	row := rowByID(t, m, claimed.ID)
	assert.Equal(t, 0.5, row["sin"])
	assert.Nil(t, row["cos"])
	assert.Equal(t, "running", row["status"], "writes never transition status")

	// Second partial write updates the remaining column and may repeat one.
	require.NoError(t, m.WriteResults(ctx, claimed.ID, map[string]interface{}{"sin": 0.25, "cos": 0.75}))
	row = rowByID(t, m, claimed.ID)
	assert.Equal(t, 0.25, row["sin"])
	assert.Equal(t, 0.75, row["cos"])
}

func TestWriteResultsStampsShadowColumns(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, true)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{{"value": 1, "exponent": 1}})
	require.NoError(t, err)
	claimed, err := m.Claim(ctx, "worker-a", false)
	require.NoError(t, err)

	require.NoError(t, m.WriteResults(ctx, claimed.ID, map[string]interface{}{"sin": 0.5}))
	row := rowByID(t, m, claimed.ID)
	assert.NotEmpty(t, row["sin_timestamp"])
	assert.Nil(t, row["cos_timestamp"], "untouched result keeps a null shadow column")
}

func TestWriteResultsUnknownField(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	err := m.WriteResults(context.Background(), 1, map[string]interface{}{"tan": 1.0})
	require.Error(t, err)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestWriteResultsRejectsShadowColumnName(t *testing.T) {
	t.Parallel()

	// Shadow columns are written by the manager, never by callers.
	m := newTestManager(t, true)
	err := m.WriteResults(context.Background(), 1, map[string]interface{}{"sin_timestamp": "now"})
	require.Error(t, err)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestWriteResultsEmpty(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	require.NoError(t, m.WriteResults(context.Background(), 1, nil))
}

func TestMarkDone(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{{"value": 1, "exponent": 1}})
	require.NoError(t, err)
	claimed, err := m.Claim(ctx, "worker-a", false)
	require.NoError(t, err)

	require.NoError(t, m.MarkDone(ctx, claimed.ID))
	row := rowByID(t, m, claimed.ID)
	assert.Equal(t, "done", row["status"])
	assert.NotEmpty(t, row["end_time"])
	assert.Nil(t, row["error"])
}

func TestMarkErrorPersistsMessage(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, false)
	ctx := context.Background()

	_, _, err := m.Insert(ctx, []map[string]interface{}{{"value": 1, "exponent": 1}})
	require.NoError(t, err)
	claimed, err := m.Claim(ctx, "worker-a", false)
	require.NoError(t, err)

	message := `callback failed: weird symbols '@#$%&/\()="` + "`"
	require.NoError(t, m.MarkError(ctx, claimed.ID, message))
	row := rowByID(t, m, claimed.ID)
	assert.Equal(t, "error", row["status"])
	assert.Equal(t, message, row["error"])
	assert.NotEmpty(t, row["end_time"])
	assert.Nil(t, row["sin"], "result columns stay null on failure")
}
