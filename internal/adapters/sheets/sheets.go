// Package sheets stores tables as tabs of a Google Sheets spreadsheet.
// Row 1 of every tab is its header and is never read or written.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	valueInputRaw   = "RAW"
	renderFormatted = "FORMATTED_VALUE"
	insertRows      = "INSERT_ROWS"
)

// Store is a repository.Store backed by one spreadsheet.
type Store struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	lastColumn    string
	clientOpts    []option.ClientOption
	log           logger.Logger
}

var _ repository.Store = (*Store)(nil)

// New connects to the Sheets API for spreadsheetID.
func New(ctx context.Context, spreadsheetID string, opts ...Option) (*Store, error) {
	if spreadsheetID == "" {
		return nil, ErrNoSpreadsheet
	}
	s := &Store{
		spreadsheetID: spreadsheetID,
		lastColumn:    DefaultLastColumn,
		log:           logger.Named("sheets"),
	}
	for _, opt := range opts {
		opt(s)
	}
	svc, err := sheetsapi.NewService(ctx, s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	s.svc = svc
	return s, nil
}

// ReadRows returns every data row of the tab.
func (s *Store) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, s.dataRange(sheet)).
		ValueRenderOption(renderFormatted).
		Context(ctx).
		Do()
	if err != nil {
		return nil, s.wrap(sheet, "read", err)
	}
	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, v := range raw {
			row[j] = cellString(v)
		}
		rows[i] = row
	}
	s.log.Debug(ctx, "sheet read", logger.String("sheet", sheet), logger.Int("rows", len(rows)))
	return rows, nil
}

// ReplaceRows clears every data row of the tab, then writes rows from row 2.
func (s *Store) ReplaceRows(ctx context.Context, sheet string, rows [][]string) error {
	_, err := s.svc.Spreadsheets.Values.
		Clear(s.spreadsheetID, s.dataRange(sheet), &sheetsapi.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return s.wrap(sheet, "clear", err)
	}
	if len(rows) == 0 {
		return nil
	}
	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, quote(sheet)+"!A2", &sheetsapi.ValueRange{Values: toValues(rows)}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return s.wrap(sheet, "write", err)
	}
	s.log.Debug(ctx, "sheet replaced", logger.String("sheet", sheet), logger.Int("rows", len(rows)))
	return nil
}

// AppendRows inserts rows after the tab's last data row.
func (s *Store) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.dataRange(sheet), &sheetsapi.ValueRange{Values: toValues(rows)}).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return s.wrap(sheet, "append", err)
	}
	return nil
}

// Tabs lists the spreadsheet's tab titles.
func (s *Store) Tabs(ctx context.Context) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	titles := make([]string, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (s *Store) dataRange(sheet string) string {
	return quote(sheet) + "!A2:" + s.lastColumn
}

// wrap maps the API's "Unable to parse range" answer onto a missing sheet.
func (s *Store) wrap(sheet, op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Message, "Unable to parse range") {
		return &repository.MissingSheetError{Sheet: sheet}
	}
	return fmt.Errorf("%s sheet %s: %w", op, sheet, err)
}

// quote renders a tab name as an A1 sheet reference.
func quote(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func toValues(rows [][]string) [][]interface{} {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, c := range row {
			cells[j] = c
		}
		values[i] = cells
	}
	return values
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
