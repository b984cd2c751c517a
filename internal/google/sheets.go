// Package google mirrors the gate event log to a Google spreadsheet so
// village management can watch gate activity without database access.
package google

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	oauth2google "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"villagegate/internal/store"
)

const eventsSheetName = "GateEvents"

// SheetsService appends gate events to a spreadsheet.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	logger        zerolog.Logger
}

// NewSheetsService creates a sheets client from a service account
// credentials file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, logger zerolog.Logger) (*SheetsService, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	conf, err := oauth2google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		logger:        logger.With().Str("component", "sheets").Logger(),
	}, nil
}

// AppendEvents appends event rows to the events sheet in one call.
func (s *SheetsService) AppendEvents(ctx context.Context, events []store.GateEvent) error {
	if len(events) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(events))
	for i := range events {
		values = append(values, eventRowValues(&events[i]))
	}

	rangeRef := fmt.Sprintf("%s!A:G", eventsSheetName)
	_, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, rangeRef, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append event rows: %w", err)
	}

	s.logger.Info().Int("rows", len(values)).Msg("mirrored gate events to spreadsheet")
	return nil
}

// eventRowValues flattens one event into a spreadsheet row.
func eventRowValues(e *store.GateEvent) []interface{} {
	return []interface{}{
		e.ID,
		e.GateID,
		e.Type,
		string(e.Mode),
		e.Source,
		e.Detail,
		e.CreatedAt.Format(time.DateTime),
	}
}
