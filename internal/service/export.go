package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportSyncLogs writes the sync log for a period into an xlsx file and
// returns its path.
func (s *ContentSyncService) ExportSyncLogs(ctx context.Context, start, end time.Time, contentType string) (string, error) {
	if err := os.MkdirAll(s.cfg.Exports.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	logs, err := s.db.ListSyncLogs(ctx, start, end, contentType)
	if err != nil {
		return "", fmt.Errorf("error getting sync logs: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sync Log"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		start.Format("02.01.2006"), end.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "H1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{
		"Queue Item", "Content Type", "Content ID", "Operation",
		"Success", "Error", "Duration (ms)", "Logged At",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, entry := range logs {
		row := i + 3
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), entry.QueueItemID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), entry.ContentType)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), entry.ContentID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), entry.Operation)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), boolToYesNo(entry.Success))
		if entry.ErrorMessage != nil {
			_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), *entry.ErrorMessage)
		}
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), entry.DurationMs)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), entry.CreatedAt.Format("02.01.2006 15:04:05"))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "D", 15)
	_ = f.SetColWidth(sheetName, "E", "E", 10)
	_ = f.SetColWidth(sheetName, "F", "F", 40)
	_ = f.SetColWidth(sheetName, "G", "G", 14)
	_ = f.SetColWidth(sheetName, "H", "H", 20)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("sync_logs_%s_to_%s.xlsx",
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	filePath := filepath.Join(s.cfg.Exports.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	s.logger.Info().Str("file_path", filePath).Int("rows", len(logs)).Msg("sync log export created")
	return filePath, nil
}

func boolToYesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
