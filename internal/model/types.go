// Package model defines domain types used by the service.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column names of the inventory sheet.
const (
	ColLocation       = "location"
	ColCategory       = "category"
	ColItemName       = "item_name"
	ColItemQuantity   = "item_quantity"
	ColLastAddDate    = "last_add_date"
	ColLastRemoveDate = "last_remove_date"
	ColNote           = "note"
)

// DateLayout is the format of last_add_date and last_remove_date.
const DateLayout = "2006-01-02"

// RequiredColumns must be present for a table to be adopted or written.
var RequiredColumns = []string{ColLocation, ColCategory, ColItemName, ColItemQuantity}

// DefaultColumns is the full schema in the order new tables are written.
var DefaultColumns = []string{
	ColLocation,
	ColCategory,
	ColItemName,
	ColItemQuantity,
	ColLastAddDate,
	ColLastRemoveDate,
	ColNote,
}

// MaxQuantity is the largest item_quantity a table may hold.
const MaxQuantity = math.MaxInt32

// ErrEmptyTable is returned by Validate for a table without rows.
var ErrEmptyTable = errors.New("table has no rows")

// MissingColumnsError lists required columns absent from a table header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// InventoryItem is one row of the inventory table.
type InventoryItem struct {
	Location       string            `json:"location"`
	Category       string            `json:"category"`
	ItemName       string            `json:"item_name"`
	ItemQuantity   int               `json:"item_quantity"`
	LastAddDate    string            `json:"last_add_date,omitempty"`
	LastRemoveDate string            `json:"last_remove_date,omitempty"`
	Note           string            `json:"note,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

func (it InventoryItem) clone() InventoryItem {
	if it.Extra != nil {
		extra := make(map[string]string, len(it.Extra))
		for k, v := range it.Extra {
			extra[k] = v
		}
		it.Extra = extra
	}
	return it
}

// Table is an ordered set of rows plus the header the store carries.
type Table struct {
	Columns []string        `json:"columns"`
	Rows    []InventoryItem `json:"rows"`
}

// NewTable builds a table with the default header.
func NewTable(rows ...InventoryItem) Table {
	cols := make([]string, len(DefaultColumns))
	copy(cols, DefaultColumns)
	return Table{Columns: cols, Rows: rows}
}

// Validate reports whether the table may be adopted by a mirror or written to a store.
func (t Table) Validate() error {
	if missing := t.MissingColumns(); len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	if len(t.Rows) == 0 {
		return ErrEmptyTable
	}
	return nil
}

// MissingColumns returns the required columns absent from the header.
func (t Table) MissingColumns() []string {
	have := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		have[normalizeHeader(c)] = struct{}{}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	out := Table{
		Columns: make([]string, len(t.Columns)),
		Rows:    make([]InventoryItem, len(t.Rows)),
	}
	copy(out.Columns, t.Columns)
	for i, r := range t.Rows {
		out.Rows[i] = r.clone()
	}
	return out
}

// ParseQuantity converts a sheet cell into a quantity. Blank cells are zero,
// fractional values are truncated and negatives clamp to zero. Values above
// MaxQuantity are rejected.
func ParseQuantity(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n > MaxQuantity {
			return 0, fmt.Errorf("invalid quantity %q: above %d", raw, MaxQuantity)
		}
		return max(n, 0), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid quantity %q", raw)
	}
	if f < 0 {
		return 0, nil
	}
	if f > MaxQuantity {
		return 0, fmt.Errorf("invalid quantity %q: above %d", raw, MaxQuantity)
	}
	return int(f), nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// ColumnKey is the name the header cell at pos is matched by: the trimmed,
// lowercased text, or "#<n>" (1-based) for a blank cell so its values stay
// in place on write.
func ColumnKey(header string, pos int) string {
	if k := normalizeHeader(header); k != "" {
		return k
	}
	return "#" + strconv.Itoa(pos+1)
}

// FromRecords converts a string grid into a table. The header is kept as
// given and matched case-insensitively; unknown columns are kept in
// InventoryItem.Extra under their ColumnKey.
func FromRecords(header []string, records [][]string) (Table, error) {
	t := Table{Columns: make([]string, len(header))}
	copy(t.Columns, header)
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = ColumnKey(h, i)
	}
	for rowNum, rec := range records {
		if isBlankRecord(rec) {
			continue
		}
		var it InventoryItem
		for i, col := range keys {
			var v string
			if i < len(rec) {
				v = rec[i]
			}
			switch col {
			case ColLocation:
				it.Location = strings.TrimSpace(v)
			case ColCategory:
				it.Category = strings.TrimSpace(v)
			case ColItemName:
				it.ItemName = strings.TrimSpace(v)
			case ColItemQuantity:
				q, err := ParseQuantity(v)
				if err != nil {
					return Table{}, fmt.Errorf("row %d: %w", rowNum+1, err)
				}
				it.ItemQuantity = q
			case ColLastAddDate:
				it.LastAddDate = v
			case ColLastRemoveDate:
				it.LastRemoveDate = v
			case ColNote:
				it.Note = v
			default:
				if v == "" {
					continue
				}
				if it.Extra == nil {
					it.Extra = make(map[string]string)
				}
				it.Extra[col] = v
			}
		}
		t.Rows = append(t.Rows, it)
	}
	return t, nil
}

// Records converts the table into a header and string grid, the inverse of
// FromRecords. The header is written back as it was read; schema columns
// absent from it are appended so no row field is lost on write.
func (t Table) Records() ([]string, [][]string) {
	header := make([]string, 0, len(t.Columns)+len(DefaultColumns))
	keys := make([]string, 0, cap(header))
	seen := make(map[string]struct{}, len(t.Columns))
	for i, c := range t.Columns {
		k := ColumnKey(c, i)
		seen[k] = struct{}{}
		header = append(header, c)
		keys = append(keys, k)
	}
	for _, c := range DefaultColumns {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			header = append(header, c)
			keys = append(keys, c)
		}
	}
	records := make([][]string, 0, len(t.Rows))
	for _, it := range t.Rows {
		rec := make([]string, len(keys))
		for i, key := range keys {
			rec[i] = it.Field(key)
		}
		records = append(records, rec)
	}
	return header, records
}

// Field returns the cell value for the column with the given ColumnKey.
func (it InventoryItem) Field(col string) string {
	switch col {
	case ColLocation:
		return it.Location
	case ColCategory:
		return it.Category
	case ColItemName:
		return it.ItemName
	case ColItemQuantity:
		return strconv.Itoa(it.ItemQuantity)
	case ColLastAddDate:
		return it.LastAddDate
	case ColLastRemoveDate:
		return it.LastRemoveDate
	case ColNote:
		return it.Note
	}
	return it.Extra[col]
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
