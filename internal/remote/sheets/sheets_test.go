package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

// fakeSheets is a minimal stand-in for the Sheets values API.
type fakeSheets struct {
	mu      sync.Mutex
	values  [][]interface{}
	calls   []string
	status  int
	updated [][]interface{}
	cleared string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		f.cleared = path[strings.Index(path, "/values/")+len("/values/") : len(path)-len(":clear")]
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
	}
	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"caller does not have permission","status":"PERMISSION_DENIED"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"majorDimension": "ROWS", "values": f.values})
	case http.MethodPut:
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.updated = body.Values
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRows": len(body.Values)})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"clearedRange": f.cleared})
	}
}

func newTestStore(t *testing.T, fake *fakeSheets) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	st, err := New(context.Background(),
		config.SheetsConfig{SpreadsheetID: "sheet-123", SheetName: "Family Inventory"},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return st
}

func TestReadParsesHeaderAndRows(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{
		{"location", "category", "item_name", "item_quantity", "last_add_date", "last_remove_date", "note"},
		{"Pantry", "Canned", "Beans", "2", "2026-10-01", "", "dented"},
		{"Fridge", "Dairy", "Milk", "1"},
	}}
	st := newTestStore(t, fake)

	tbl, err := st.Read(context.Background())
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Beans", tbl.Rows[0].ItemName)
	assert.Equal(t, 2, tbl.Rows[0].ItemQuantity)
	assert.Equal(t, "dented", tbl.Rows[0].Note)
	assert.Equal(t, "Milk", tbl.Rows[1].ItemName)
	assert.Equal(t, []string{"get"}, fake.calls)
}

func TestReadBlankSheet(t *testing.T) {
	st := newTestStore(t, &fakeSheets{})
	tbl, err := st.Read(context.Background())
	require.NoError(t, err)
	assert.Error(t, tbl.Validate())
}

func TestWriteUpdatesThenClearsTail(t *testing.T) {
	fake := &fakeSheets{}
	st := newTestStore(t, fake)

	tbl := model.NewTable(
		model.InventoryItem{Location: "Pantry", Category: "Canned", ItemName: "Beans", ItemQuantity: 1},
		model.InventoryItem{Location: "Pantry", Category: "Grains", ItemName: "Rice", ItemQuantity: 5},
	)
	require.NoError(t, st.Write(context.Background(), tbl))

	assert.Equal(t, []string{"update", "clear"}, fake.calls)
	require.Len(t, fake.updated, 3)
	assert.Equal(t, "item_name", fake.updated[0][2])
	assert.Equal(t, "Rice", fake.updated[2][2])
	// quantities go out as JSON numbers
	assert.Equal(t, float64(5), fake.updated[2][3])
	assert.Equal(t, "'Family Inventory'!A4:Z", fake.cleared)
}

func TestWriteKeepsUserHeader(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{
		{"Location", "Category", "Item_Name", "Item_Quantity", "Best Before", ""},
		{"Pantry", "Canned", "Beans", "2", "2026-01-01", "keepme"},
	}}
	st := newTestStore(t, fake)
	ctx := context.Background()

	tbl, err := st.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())
	require.NoError(t, st.Write(ctx, tbl))

	require.Len(t, fake.updated, 2)
	assert.Equal(t, []interface{}{"Location", "Category", "Item_Name", "Item_Quantity", "Best Before", "",
		"last_add_date", "last_remove_date", "note"}, fake.updated[0])
	assert.Equal(t, float64(2), fake.updated[1][3])
	assert.Equal(t, "2026-01-01", fake.updated[1][4])
	assert.Equal(t, "keepme", fake.updated[1][5])
}

func TestAPIErrorsCarryStatus(t *testing.T) {
	fake := &fakeSheets{status: http.StatusForbidden}
	st := newTestStore(t, fake)

	_, err := st.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")

	err = st.Write(context.Background(), model.NewTable(model.InventoryItem{ItemName: "x"}))
	require.Error(t, err)
	assert.Equal(t, []string{"get", "update"}, fake.calls)
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), config.SheetsConfig{})
	require.ErrorIs(t, err, errSpreadsheetIDRequired)
}

func TestA1QuotesSheetName(t *testing.T) {
	s := &Store{sheetName: "Bob's"}
	assert.Equal(t, "'Bob''s'!A1", s.a1("A1"))
}
