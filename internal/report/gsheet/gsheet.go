// Package gsheet publishes report tables to a Google spreadsheet.
package gsheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"mysokha/internal/log"
	"mysokha/internal/report"
)

// ErrNoCredentials is returned when neither inline nor file credentials are set.
var ErrNoCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")

// Publisher overwrites the summary and pivot sheets of one spreadsheet.
type Publisher struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

// LoadCredentials picks inline JSON first, then the file, then the standard
// GOOGLE_APPLICATION_CREDENTIALS path.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	inlineJSON = strings.TrimSpace(inlineJSON)
	file = strings.TrimSpace(file)
	if inlineJSON == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inlineJSON != "":
		return []byte(inlineJSON), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, ErrNoCredentials
}

// New creates a publisher authenticated with a service account.
func New(ctx context.Context, spreadsheetID string, credentials []byte, logger *log.Logger) (*Publisher, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Publisher{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger.WithComponent(log.ComponentReport),
	}, nil
}

// Publish replaces the contents of both report sheets, creating them when
// the spreadsheet does not have them yet.
func (p *Publisher) Publish(ctx context.Context, summary report.Summary, pivot report.Pivot) error {
	if p.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := p.ensureSheets(ctx, report.SummarySheet, report.PivotSheet); err != nil {
		return err
	}
	for _, sheet := range []struct {
		name string
		grid [][]any
	}{
		{report.SummarySheet, summary.Grid()},
		{report.PivotSheet, pivot.Grid()},
	} {
		whole := sheetRange(sheet.name, "")
		if _, err := p.svc.Spreadsheets.Values.Clear(p.spreadsheetID, whole, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("clear %s: %w", whole, err)
		}
		vr := valueRange(sheet.name, sheet.grid)
		if _, err := p.svc.Spreadsheets.Values.Update(p.spreadsheetID, vr.Range, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("update %s: %w", vr.Range, err)
		}
	}
	p.logger.InfoContext(ctx, "Report published to spreadsheet",
		log.FieldOperation, log.OpPublish,
		"spreadsheet_id", p.spreadsheetID,
		log.FieldCount, len(summary.Rows))
	return nil
}

func (p *Publisher) ensureSheets(ctx context.Context, titles ...string) error {
	ss, err := p.svc.Spreadsheets.Get(p.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	var existing []string
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing = append(existing, sh.Properties.Title)
		}
	}
	reqs := missingSheets(existing, titles)
	if len(reqs) == 0 {
		return nil
	}
	_, err = p.svc.Spreadsheets.BatchUpdate(p.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheets: %w", err)
	}
	return nil
}

func missingSheets(existing, wanted []string) []*gsheet.Request {
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}
	var reqs []*gsheet.Request
	for _, t := range wanted {
		if have[t] {
			continue
		}
		reqs = append(reqs, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: t}},
		})
	}
	return reqs
}

// sheetRange quotes the sheet name in A1 notation.
func sheetRange(sheet, cells string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

// valueRange converts a report grid into API values. Blank cells become
// empty strings so the row keeps its column positions.
func valueRange(sheet string, grid [][]any) *gsheet.ValueRange {
	values := make([][]any, len(grid))
	for i, row := range grid {
		out := make([]any, len(row))
		for j, v := range row {
			if v == nil {
				v = ""
			}
			out[j] = v
		}
		values[i] = out
	}
	return &gsheet.ValueRange{
		Range:          sheetRange(sheet, "A1"),
		MajorDimension: "ROWS",
		Values:         values,
	}
}
