package mirror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

func TestIncrementThenDecrementRestoresValueButStaysDirty(t *testing.T) {
	m := loaded(t, beans())

	item, err := m.Increment(0)
	require.NoError(t, err)
	assert.Equal(t, 3, item.ItemQuantity)
	assert.Equal(t, "2026-10-19", item.LastAddDate)

	item, changed, err := m.Decrement(0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, item.ItemQuantity)
	assert.Equal(t, "2026-10-19", item.LastRemoveDate)

	assert.True(t, m.Dirty())
	assert.Equal(t, uint64(2), m.Pending())
}

func TestDecrementAtZeroIsCleanNoop(t *testing.T) {
	m := loaded(t, model.InventoryItem{Location: "Pantry", Category: "Canned", ItemName: "Corn"})

	item, changed, err := m.Decrement(0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, item.ItemQuantity)
	assert.Empty(t, item.LastRemoveDate)
	assert.False(t, m.Dirty())
}

func TestMutationsRejectBadIndex(t *testing.T) {
	m := loaded(t, beans())
	var ie *IndexError

	_, err := m.Increment(5)
	require.True(t, errors.As(err, &ie))
	_, _, err = m.Decrement(-1)
	require.True(t, errors.As(err, &ie))
	assert.False(t, m.Dirty())
}

func TestIncrementStopsAtMaxQuantity(t *testing.T) {
	m := loaded(t, model.InventoryItem{Location: "Garage", Category: "Paper", ItemName: "Towels", ItemQuantity: model.MaxQuantity})

	item, err := m.Increment(0)
	require.ErrorIs(t, err, ErrQuantityLimit)
	assert.Equal(t, model.MaxQuantity, item.ItemQuantity)
	assert.Empty(t, item.LastAddDate)
	assert.False(t, m.Dirty())
}

func TestMutationsInStaleGenerationAreRefused(t *testing.T) {
	m := loaded(t, beans())
	gen := m.Generation()
	require.NoError(t, m.Replace(model.NewTable(beans())))

	var ge *GenerationError
	_, err := m.IncrementIn(gen, 0)
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gen, ge.Expected)
	assert.Equal(t, m.Generation(), ge.Current)
	_, _, err = m.DecrementIn(gen, 0)
	require.True(t, errors.As(err, &ge))
	assert.False(t, m.Dirty())

	item, err := m.IncrementIn(m.Generation(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, item.ItemQuantity)
	_, changed, err := m.DecrementIn("", 0)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestBeansScenario(t *testing.T) {
	m := loaded(t, beans())

	item, err := m.Increment(0)
	require.NoError(t, err)
	assert.Equal(t, 3, item.ItemQuantity)
	assert.True(t, m.Dirty())

	_, _, err = m.Decrement(0)
	require.NoError(t, err)
	item, _, err = m.Decrement(0)
	require.NoError(t, err)
	assert.Equal(t, 1, item.ItemQuantity)
	assert.True(t, m.Dirty())
}

func TestAddItem(t *testing.T) {
	m := loaded(t, beans())

	idx, err := m.AddItem(NewItem{Name: "Rice", Location: "Pantry", Category: "Grains", Quantity: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Dirty())

	item, err := m.Item(1)
	require.NoError(t, err)
	assert.Equal(t, 5, item.ItemQuantity)
	assert.Equal(t, "2026-10-19", item.LastAddDate)
	assert.Empty(t, item.LastRemoveDate)
	assert.Empty(t, item.Note)
}

func TestAddItemDefaultsAndTrims(t *testing.T) {
	m := loaded(t, beans())

	idx, err := m.AddItem(NewItem{Name: "  Soup ", Location: " Pantry", Category: "Canned ", Note: "tomato"})
	require.NoError(t, err)
	item, _ := m.Item(idx)
	assert.Equal(t, DefaultQuantity, item.ItemQuantity)
	assert.Equal(t, "Soup", item.ItemName)
	assert.Equal(t, "Pantry", item.Location)
	assert.Equal(t, "Canned", item.Category)
	assert.Equal(t, "tomato", item.Note)

	rows := m.Filter("Pantry", "Canned")
	assert.Len(t, rows, 2)

	idx, err = m.AddItem(NewItem{Name: "Salt", Location: "Pantry", Category: "Spices", Quantity: intPtr(0)})
	require.NoError(t, err)
	item, _ = m.Item(idx)
	assert.Equal(t, 0, item.ItemQuantity)
}

func TestAddItemValidation(t *testing.T) {
	cases := []struct {
		name   string
		in     NewItem
		fields []string
	}{
		{"empty name", NewItem{Name: "", Location: "Pantry", Category: "Grains"}, []string{"item_name"}},
		{"whitespace only", NewItem{Name: "  ", Location: "\t", Category: "Grains"}, []string{"item_name", "location"}},
		{"all missing", NewItem{}, []string{"category", "item_name", "location"}},
		{"negative quantity", NewItem{Name: "Rice", Location: "Pantry", Category: "Grains", Quantity: intPtr(-1)}, []string{"item_quantity"}},
		{"quantity above max", NewItem{Name: "Rice", Location: "Pantry", Category: "Grains", Quantity: intPtr(model.MaxQuantity + 1)}, []string{"item_quantity"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := loaded(t, beans())
			idx, err := m.AddItem(tc.in)
			assert.Equal(t, -1, idx)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.fields, ve.FieldNames())
			for _, f := range tc.fields {
				assert.Contains(t, err.Error(), f)
			}
			assert.Equal(t, 1, m.Len())
			assert.False(t, m.Dirty())
		})
	}
}
