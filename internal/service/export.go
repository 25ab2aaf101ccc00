package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/progress"
)

const exportSheet = "Progress"

// ExportService renders the progress collection for operators.
type ExportService struct {
	progress domain.ProgressStore
}

// NewExportService creates a new ExportService.
func NewExportService(progress domain.ProgressStore) *ExportService {
	return &ExportService{progress: progress}
}

// Workbook reads the full progress collection and returns it as an .xlsx
// workbook, one row per learner sorted by registration number.
func (s *ExportService) Workbook(ctx context.Context) ([]byte, error) {
	snap, err := s.progress.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return ProgressWorkbook(snap)
}

// ProgressWorkbook renders snap as an .xlsx workbook.
func ProgressWorkbook(snap *domain.ProgressSnapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"RegNo", "Name", "Completed", "IssuedAt", "Notified"}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	keys := make([]domain.LearnerKey, 0, len(snap.Records))
	for k := range snap.Records {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for i, key := range keys {
		rec := snap.Records[key]
		issued := ""
		if rec.IssuedAt != nil {
			issued = rec.IssuedAt.UTC().Format(progress.TimestampLayout)
		}
		row := []any{string(rec.Key), rec.Name, rec.Completed, issued, rec.Notified}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
