package mirror

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func loaded(t *testing.T, rows ...model.InventoryItem) *Mirror {
	t.Helper()
	m := New(WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, m.Replace(model.NewTable(rows...)))
	return m
}

func beans() model.InventoryItem {
	return model.InventoryItem{Location: "Pantry", Category: "Canned", ItemName: "Beans", ItemQuantity: 2}
}

func TestReplaceRefusesInvalidTables(t *testing.T) {
	m := New()
	require.ErrorIs(t, m.Replace(model.NewTable()), model.ErrEmptyTable)

	var mce *model.MissingColumnsError
	err := m.Replace(model.Table{Columns: []string{"item_name"}, Rows: []model.InventoryItem{{ItemName: "x"}}})
	require.True(t, errors.As(err, &mce))

	assert.False(t, m.Loaded())
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Generation())
}

func TestReplaceStartsCleanGeneration(t *testing.T) {
	m := loaded(t, beans())
	gen := m.Generation()
	assert.NotEmpty(t, gen)
	assert.True(t, m.Loaded())
	assert.False(t, m.Dirty())

	_, err := m.Increment(0)
	require.NoError(t, err)
	require.True(t, m.Dirty())

	require.NoError(t, m.Replace(model.NewTable(beans())))
	assert.False(t, m.Dirty())
	assert.NotEqual(t, gen, m.Generation())
	item, _ := m.Item(0)
	assert.Equal(t, 2, item.ItemQuantity)
}

func TestReplaceCopiesInput(t *testing.T) {
	tbl := model.NewTable(beans())
	m := loaded(t, tbl.Rows...)
	tbl.Rows[0].ItemQuantity = 99
	item, err := m.Item(0)
	require.NoError(t, err)
	assert.Equal(t, 2, item.ItemQuantity)
}

func TestFilterAndDistinct(t *testing.T) {
	m := loaded(t,
		model.InventoryItem{Location: "Pantry", Category: "Canned", ItemName: "Beans", ItemQuantity: 2},
		model.InventoryItem{Location: "Fridge", Category: "Dairy", ItemName: "Milk", ItemQuantity: 1},
		model.InventoryItem{Location: "Pantry", Category: "Grains", ItemName: "Rice", ItemQuantity: 5},
		model.InventoryItem{Location: "Pantry", Category: "Canned", ItemName: "Beans", ItemQuantity: 1},
		model.InventoryItem{Location: "", Category: "Loose", ItemName: "Mystery"},
		model.InventoryItem{Location: "pantry", Category: "canned", ItemName: "Tuna"},
	)

	rows := m.Filter("Pantry", "Canned")
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, 3, rows[1].Index)
	assert.Equal(t, "Beans", rows[1].Item.ItemName)

	assert.Empty(t, m.Filter("Pantry", "Dairy"))
	assert.Equal(t, []string{"Fridge", "Pantry", "pantry"}, m.DistinctLocations())
	assert.Equal(t, []string{"Canned", "Dairy", "Grains", "Loose", "canned"}, m.DistinctCategories(Global()))
	assert.Equal(t, []string{"Canned", "Grains"}, m.DistinctCategories(WithinLocation("Pantry")))
	assert.Empty(t, m.DistinctCategories(WithinLocation("")))
	assert.Empty(t, m.DistinctCategories(WithinLocation("Garage")))
}

func TestSnapshotIsIsolated(t *testing.T) {
	m := loaded(t, beans())
	snap, v, dirty := m.Snapshot()
	assert.False(t, dirty)
	_, err := m.Increment(0)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Rows[0].ItemQuantity)

	_, v2, dirty := m.Snapshot()
	assert.Greater(t, v2, v)
	assert.True(t, dirty)
}

func TestMarkSyncedKeepsLaterMutationsDirty(t *testing.T) {
	m := loaded(t, beans())
	_, _ = m.Increment(0)
	_, v, _ := m.Snapshot()
	_, _ = m.Increment(0)

	m.MarkSynced(v)
	assert.True(t, m.Dirty())
	assert.Equal(t, uint64(1), m.Pending())

	_, v, _ = m.Snapshot()
	m.MarkSynced(v)
	assert.False(t, m.Dirty())

	// stale acknowledgements never move the baseline backwards
	m.MarkSynced(v - 1)
	assert.False(t, m.Dirty())
}

func TestItemOutOfRange(t *testing.T) {
	m := loaded(t, beans())
	_, err := m.Item(1)
	var ie *IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Index)
	assert.Equal(t, 1, ie.Len)
	_, err = m.Item(-1)
	require.Error(t, err)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	m := loaded(t, beans())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.Increment(0)
		}()
		go func() {
			defer wg.Done()
			_, _, _ = m.Snapshot()
			_ = m.Filter("Pantry", "Canned")
		}()
	}
	wg.Wait()
	item, _ := m.Item(0)
	assert.Equal(t, 52, item.ItemQuantity)
	assert.Equal(t, uint64(50), m.Pending())
}
