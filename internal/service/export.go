package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"vitalsync-data/internal/domain"
	"vitalsync-data/internal/repository"
)

// DailySummaryExportHeader 每日汇总导出表头
var DailySummaryExportHeader = []string{
	"Date",
	"Steps",
	"Resting Heart Rate",
	"Sleep Minutes",
	"Calories",
	"Distance",
	"Floors",
	"Elevation",
	"Active Minutes",
	"Sedentary Minutes",
	"Nutrition Calories",
	"Water",
	"Weight",
	"BMI",
	"Fat",
	"Oxygen Saturation",
	"Respiratory Rate",
	"Temperature",
}

// Exporter 每日汇总的 Excel 导出
type Exporter struct {
	metrics repository.MetricsRepository
}

func NewExporter(metrics repository.MetricsRepository) *Exporter {
	return &Exporter{metrics: metrics}
}

// ExportDailySummaries 导出一个设备的每日汇总为 xlsx，范围为空则全量
func (e *Exporter) ExportDailySummaries(ctx context.Context, deviceID string, startDate, endDate *time.Time) ([]byte, error) {
	summaries, err := e.metrics.GetDailySummaries(ctx, deviceID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return generateDailySummaryExcel(summaries)
}

func generateDailySummaryExcel(summaries []*domain.DailySummary) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Daily Summaries"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range DailySummaryExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 写入数据行，nil 字段留空
	for rowIdx, s := range summaries {
		values := []interface{}{
			s.Date.Format("2006-01-02"),
			intCell(s.Steps),
			floatCell(s.HeartRate),
			floatCell(s.SleepMinutes),
			floatCell(s.Calories),
			floatCell(s.Distance),
			floatCell(s.Floors),
			floatCell(s.Elevation),
			floatCell(s.ActiveMinutes),
			floatCell(s.SedentaryMinutes),
			floatCell(s.NutritionCalories),
			floatCell(s.Water),
			floatCell(s.Weight),
			floatCell(s.BMI),
			floatCell(s.Fat),
			floatCell(s.OxygenSaturation),
			floatCell(s.RespiratoryRate),
			floatCell(s.Temperature),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if value == nil {
				continue
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}

	return buf.Bytes(), nil
}

func intCell(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
