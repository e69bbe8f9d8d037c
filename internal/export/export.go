// Package export renders the weekly training schedule as a grid: one row
// per trainer, one column per day of week.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fitbook/internal/database"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

var dayNames = [7]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

type Exporter struct {
	db     *database.DB
	path   string
	logger *zerolog.Logger
}

func NewExporter(db *database.DB, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{db: db, path: path, logger: logger}
}

// BuildGrid collects the planned catalog into header + trainer rows.
func (e *Exporter) BuildGrid(ctx context.Context) ([][]interface{}, error) {
	trainers, err := e.db.ListTrainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting trainers: %v", err)
	}

	catalog, err := e.db.GetTrainingCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting catalog: %v", err)
	}

	// trainer id -> day of week -> cell lines
	cells := make(map[int64]map[int][]string)
	for _, entry := range catalog {
		if entry.Window == nil {
			continue
		}
		byDay, ok := cells[entry.Training.TrainerID]
		if !ok {
			byDay = make(map[int][]string)
			cells[entry.Training.TrainerID] = byDay
		}

		line := fmt.Sprintf("%s-%s %s", entry.Window.StartTime, entry.Window.EndTime, entry.Training.Type)
		if entry.Gym != nil {
			line += fmt.Sprintf(" (%s)", entry.Gym.Name)
		}
		byDay[entry.Window.DayOfWeek] = append(byDay[entry.Window.DayOfWeek], line)
	}

	header := make([]interface{}, 0, 8)
	header = append(header, "Тренер")
	for _, name := range dayNames {
		header = append(header, name)
	}

	grid := [][]interface{}{header}
	for _, trainer := range trainers {
		row := make([]interface{}, 0, 8)
		row = append(row, trainer.Name)
		for day := 0; day < 7; day++ {
			lines := cells[trainer.ID][day]
			sort.Strings(lines)
			row = append(row, strings.Join(lines, "\n"))
		}
		grid = append(grid, row)
	}

	return grid, nil
}

// ExportToExcel writes the weekly grid to an xlsx file and returns its path.
func (e *Exporter) ExportToExcel(ctx context.Context) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	grid, err := e.BuildGrid(ctx)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Расписание"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for rowIdx, row := range grid {
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			_ = f.SetCellValue(sheetName, cell, value)
			if rowIdx == 0 {
				_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	for col := 'B'; col <= 'H'; col++ {
		_ = f.SetColWidth(sheetName, string(col), string(col), 28)
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%s.xlsx", time.Now().Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}
