// Package report exports triage history as Excel workbooks.
package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
)

const sheetName = "Triage History"

var headers = []string{
	"Workflow ID", "Message ID", "Subject", "Sender",
	"Category", "Confidence", "Status", "Error Kind",
	"Final Action", "Created At", "Updated At",
}

// Exporter renders triage history records into an Excel workbook and
// optionally archives a copy through file storage.
type Exporter struct {
	storage port.FileStorage
	logger  *zap.Logger
}

// NewExporter creates an exporter. storage may be nil, in which case no
// archive copy is kept.
func NewExporter(storage port.FileStorage, logger *zap.Logger) *Exporter {
	return &Exporter{storage: storage, logger: logger}
}

// Export renders records into a workbook and returns the serialized bytes.
// A copy is archived under a timestamped name when storage is configured.
func (e *Exporter) Export(ctx context.Context, records []*port.TriageRecord) ([]byte, error) {
	buf, err := e.build(records)
	if err != nil {
		return nil, err
	}

	if e.storage != nil {
		name := fmt.Sprintf("triage-%s.xlsx", time.Now().Format("20060102-150405"))
		if err := e.storage.Save(ctx, name, buf.Bytes()); err != nil {
			e.logger.Warn("Failed to archive report copy",
				zap.String("name", name),
				zap.Error(err))
		}
	}

	e.logger.Info("Report exported",
		zap.Int("rows", len(records)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (e *Exporter) build(records []*port.TriageRecord) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		e.setCell(f, cell, h)
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastCol, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	e.setColWidths(f)

	for row, rec := range records {
		values := []interface{}{
			rec.WorkflowID,
			rec.MessageID,
			rec.Subject,
			rec.Sender,
			rec.Category,
			rec.Confidence,
			rec.Status,
			rec.ErrorKind,
			rec.FinalAction,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			e.setCell(f, cell, v)
		}
	}

	footerCell, _ := excelize.CoordinatesToCellName(1, len(records)+3)
	e.setCell(f, footerCell,
		fmt.Sprintf("Generated at %s, %d records", time.Now().Format("2006-01-02 15:04:05"), len(records)))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf, nil
}

func (e *Exporter) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func (e *Exporter) setColWidths(f *excelize.File) {
	widths := map[string]float64{
		"A": 38, "B": 38, "C": 40, "D": 28,
		"E": 16, "F": 12, "G": 18, "H": 20,
		"I": 22, "J": 20, "K": 20,
	}
	for col, w := range widths {
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			e.logger.Warn("Failed to set column width",
				zap.String("column", col),
				zap.Error(err))
		}
	}
}
