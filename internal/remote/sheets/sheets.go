// Package sheets stores the inventory table in a Google Sheets worksheet.
//
// The first row of the worksheet is the header. Writes put the header and all
// rows at A1 and then clear whatever remains below, so the sheet is never
// blank between the two calls.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

var errSpreadsheetIDRequired = errors.New("spreadsheet id is required")

// Store reads and writes one worksheet of a spreadsheet.
type Store struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	sheetName     string
	lastColumn    string
}

// New creates a Sheets-backed store. Extra client options are appended after
// the ones derived from cfg.
func New(ctx context.Context, cfg config.SheetsConfig, extra ...option.ClientOption) (*Store, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errSpreadsheetIDRequired
	}
	opts := clientOptions(cfg)
	opts = append(opts, extra...)
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	name := cfg.SheetName
	if name == "" {
		name = "Sheet1"
	}
	last := strings.ToUpper(strings.TrimSpace(cfg.LastColumn))
	if last == "" {
		last = "Z"
	}
	return &Store{svc: svc, spreadsheetID: id, sheetName: name, lastColumn: last}, nil
}

func clientOptions(cfg config.SheetsConfig) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		opts = append(opts, option.WithEndpoint(ep))
	}
	return opts
}

// a1 builds an A1 range on the configured sheet.
func (s *Store) a1(rng string) string {
	return "'" + strings.ReplaceAll(s.sheetName, "'", "''") + "'!" + rng
}

// Read returns the worksheet as a table. A blank worksheet yields a table
// with no columns and no rows.
func (s *Store) Read(ctx context.Context) (model.Table, error) {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, s.a1("A:"+s.lastColumn)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return model.Table{}, describe("read", err)
	}
	if len(resp.Values) == 0 {
		return model.Table{}, nil
	}
	header := cells(resp.Values[0])
	records := make([][]string, 0, len(resp.Values)-1)
	for _, r := range resp.Values[1:] {
		records = append(records, cells(r))
	}
	return model.FromRecords(header, records)
}

// Write overwrites the worksheet with t.
func (s *Store) Write(ctx context.Context, t model.Table) error {
	header, records := t.Records()
	values := make([][]interface{}, 0, len(records)+1)
	values = append(values, row(header, nil))
	for _, rec := range records {
		values = append(values, row(rec, header))
	}
	_, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, s.a1("A1"), &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return describe("write", err)
	}
	tail := fmt.Sprintf("A%d:%s", len(values)+1, s.lastColumn)
	if _, err := s.svc.Spreadsheets.Values.
		Clear(s.spreadsheetID, s.a1(tail), &sheetsapi.ClearValuesRequest{}).
		Context(ctx).
		Do(); err != nil {
		return describe("clear tail", err)
	}
	return nil
}

func cells(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

// row converts a record into sheet cells. Quantities go out as numbers so
// the sheet keeps treating the column as numeric.
func row(in, header []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
		if i < len(header) && model.ColumnKey(header[i], i) == model.ColItemQuantity {
			if n, err := strconv.Atoi(v); err == nil {
				out[i] = n
			}
		}
	}
	return out
}

func describe(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("sheets %s: status %d: %w", op, apiErr.Code, err)
	}
	return fmt.Errorf("sheets %s: %w", op, err)
}
