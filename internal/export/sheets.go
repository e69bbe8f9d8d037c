package export

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsMirror pushes the weekly grid to a Google Sheets spreadsheet so
// front-desk staff see the schedule without touching the API.
type SheetsMirror struct {
	service       *sheets.Service
	spreadsheetID string
	accountEmail  string
}

func NewSheetsMirror(credentialsFile, spreadsheetID string) (*SheetsMirror, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	// Создаем JWT конфигурацию
	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsMirror{
		service:       srv,
		spreadsheetID: spreadsheetID,
		accountEmail:  config.Email,
	}, nil
}

// TestConnection проверяет подключение к таблице
func (s *SheetsMirror) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Schedule!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта, которому
// нужно выдать доступ к таблице
func (s *SheetsMirror) GetServiceAccountEmail() string {
	return s.accountEmail
}

// MirrorSchedule replaces the Schedule sheet contents with the grid.
func (s *SheetsMirror) MirrorSchedule(ctx context.Context, grid [][]interface{}) error {
	clearReq := &sheets.ClearValuesRequest{}
	if _, err := s.service.Spreadsheets.Values.
		Clear(s.spreadsheetID, "Schedule!A:H", clearReq).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear schedule sheet: %v", err)
	}

	valueRange := &sheets.ValueRange{Values: grid}
	if _, err := s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, "Schedule!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update schedule sheet: %v", err)
	}

	return nil
}
