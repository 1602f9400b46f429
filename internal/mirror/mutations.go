package mirror

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

// DefaultQuantity is used by AddItem when no quantity is given.
const DefaultQuantity = 1

// ErrQuantityLimit is returned by Increment for a row already at
// model.MaxQuantity.
var ErrQuantityLimit = errors.New("quantity is at its maximum")

// GenerationError is returned when a row index was read from a table that
// has since been replaced.
type GenerationError struct {
	Expected string
	Current  string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("row indexes are from generation %s, current is %s", e.Expected, e.Current)
}

// NewItem carries the fields of an item to append.
type NewItem struct {
	Name     string `json:"item_name" validate:"required"`
	Location string `json:"location" validate:"required"`
	Category string `json:"category" validate:"required"`
	Quantity *int   `json:"item_quantity,omitempty" validate:"omitempty,min=0,max=2147483647"`
	Note     string `json:"note,omitempty"`
}

// ValidationError maps json field names to what is wrong with them.
type ValidationError struct {
	Fields map[string]string
}

// FieldNames returns the offending fields, sorted.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.FieldNames() {
		parts = append(parts, f+" "+e.Fields[f])
	}
	return "invalid item: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Validate trims the text fields and checks them.
func (n *NewItem) Validate() error {
	n.Name = strings.TrimSpace(n.Name)
	n.Location = strings.TrimSpace(n.Location)
	n.Category = strings.TrimSpace(n.Category)
	err := validate.Struct(n)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(errs))}
	for _, fe := range errs {
		out.Fields[fe.Field()] = validationMessage(fe)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return "is invalid"
}

func (m *Mirror) today() string {
	return m.now().Format(model.DateLayout)
}

// checkGeneration requires gen, when set, to name the current table. The
// caller holds the write lock.
func (m *Mirror) checkGeneration(gen string) error {
	if gen != "" && gen != m.generation {
		return &GenerationError{Expected: gen, Current: m.generation}
	}
	return nil
}

// Increment adds one to the row's quantity and stamps last_add_date.
func (m *Mirror) Increment(index int) (model.InventoryItem, error) {
	return m.IncrementIn("", index)
}

// IncrementIn is Increment for an index read from generation gen. An empty
// gen skips the check.
func (m *Mirror) IncrementIn(gen string, index int) (model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkGeneration(gen); err != nil {
		return model.InventoryItem{}, err
	}
	if err := m.checkIndex(index); err != nil {
		return model.InventoryItem{}, err
	}
	row := &m.table.Rows[index]
	if row.ItemQuantity >= model.MaxQuantity {
		return *row, ErrQuantityLimit
	}
	row.ItemQuantity++
	row.LastAddDate = m.today()
	m.version++
	return *row, nil
}

// Decrement removes one from the row's quantity and stamps last_remove_date.
// At zero it changes nothing and reports changed=false; the mirror does not
// become dirty.
func (m *Mirror) Decrement(index int) (item model.InventoryItem, changed bool, err error) {
	return m.DecrementIn("", index)
}

// DecrementIn is Decrement for an index read from generation gen. An empty
// gen skips the check.
func (m *Mirror) DecrementIn(gen string, index int) (item model.InventoryItem, changed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkGeneration(gen); err != nil {
		return model.InventoryItem{}, false, err
	}
	if err := m.checkIndex(index); err != nil {
		return model.InventoryItem{}, false, err
	}
	row := &m.table.Rows[index]
	if row.ItemQuantity <= 0 {
		row.ItemQuantity = 0
		return *row, false, nil
	}
	row.ItemQuantity--
	row.LastRemoveDate = m.today()
	m.version++
	return *row, true, nil
}

// AddItem validates n and appends it, returning the new row's index. On a
// validation error the mirror is untouched.
func (m *Mirror) AddItem(n NewItem) (int, error) {
	if err := n.Validate(); err != nil {
		return -1, err
	}
	qty := DefaultQuantity
	if n.Quantity != nil {
		qty = *n.Quantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.Rows = append(m.table.Rows, model.InventoryItem{
		Location:     n.Location,
		Category:     n.Category,
		ItemName:     n.Name,
		ItemQuantity: qty,
		LastAddDate:  m.today(),
		Note:         n.Note,
	})
	m.version++
	return len(m.table.Rows) - 1, nil
}
