// Package export renders a patient's observation chart as an xlsx workbook.
package export

import (
	"bytes"
	"fmt"
	"time"

	"wisefido-ews/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet      = "Summary"
	ObservationsSheet = "Observations"
	AlertsSheet       = "Alerts"

	timeLayout = "2006-01-02 15:04"
)

// ObservationHeader is the header row of the observations sheet. Each vital is followed by its score.
var ObservationHeader = []string{
	"Observed At", "Recorded By",
	"Resp Rate", "RR Score",
	"SpO2", "SpO2 Score",
	"Supplemental O2", "O2 Score",
	"Systolic BP", "SBP Score",
	"Pulse", "Pulse Score",
	"ACVPU", "ACVPU Score",
	"Temperature", "Temp Score",
	"Total", "Risk", "Next Review", "Notes", "Action Taken",
}

// AlertHeader is the header row of the alerts sheet.
var AlertHeader = []string{
	"Created At", "Kind", "Severity", "Status", "Message", "Acknowledged By", "Acknowledged At", "Resolved At",
}

// scoreColumns are the 1-based observation columns holding component scores.
var scoreColumns = []int{4, 6, 8, 10, 12, 14, 16}

type styles struct {
	header   int
	critical int
	elevated int
}

// WriteChart builds the workbook for one patient. observations and alerts are written in the given order.
func WriteChart(patient *models.MonitoringPatient, observations []*models.Observation, alerts []*models.Alert, exportedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{ObservationsSheet, AlertsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}
	if err := writeSummary(f, st, patient, len(observations), exportedAt); err != nil {
		return nil, err
	}
	if err := writeObservations(f, st, observations); err != nil {
		return nil, err
	}
	if err := writeAlerts(f, st, alerts); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error

	st.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return st, fmt.Errorf("failed to create header style: %w", err)
	}
	st.critical, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#C00000"}, Pattern: 1},
	})
	if err != nil {
		return st, fmt.Errorf("failed to create critical style: %w", err)
	}
	st.elevated, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC000"}, Pattern: 1},
	})
	if err != nil {
		return st, fmt.Errorf("failed to create elevated style: %w", err)
	}
	return st, nil
}

func writeHeader(f *excelize.File, sheet string, style int, header []string, width float64) error {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "A", last, width); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummary(f *excelize.File, st styles, p *models.MonitoringPatient, count int, exportedAt time.Time) error {
	rows := [][]interface{}{
		{"Patient ID", p.PatientID},
		{"Client ID", p.ClientID},
		{"Branch", p.BranchID},
		{"Monitoring Frequency", string(p.Frequency)},
		{"Current Risk", string(p.RiskLevel)},
		{"Active", yesNo(p.Active)},
		{"Enrolled At", p.EnrolledAt.Format(timeLayout)},
		{"Observations", count},
		{"Exported At", exportedAt.Format(timeLayout)},
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), st.header); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeObservations(f *excelize.File, st styles, observations []*models.Observation) error {
	if err := writeHeader(f, ObservationsSheet, st.header, ObservationHeader, 14); err != nil {
		return err
	}

	for i, o := range observations {
		rowNum := i + 2
		row := []interface{}{
			o.ObservedAt.Format(timeLayout), o.RecordedBy,
			o.RespiratoryRate, o.Scores.RespiratoryRate,
			o.SpO2, o.Scores.SpO2,
			yesNo(o.SupplementalO2), o.Scores.SupplementalO2,
			o.SystolicBP, o.Scores.SystolicBP,
			o.PulseRate, o.Scores.PulseRate,
			string(o.Consciousness), o.Scores.Consciousness,
			o.Temperature, o.Scores.Temperature,
			o.TotalScore, string(o.RiskLevel), o.NextReviewAt.Format(timeLayout), o.Notes, o.ActionTaken,
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(ObservationsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write observation row %d: %w", rowNum, err)
		}

		for idx, score := range o.Scores.Values() {
			style := 0
			switch {
			case score == 3:
				style = st.critical
			case score == 2:
				style = st.elevated
			}
			if style == 0 {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(scoreColumns[idx], rowNum)
			if err := f.SetCellStyle(ObservationsSheet, cell, cell, style); err != nil {
				return fmt.Errorf("failed to style score cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

func writeAlerts(f *excelize.File, st styles, alerts []*models.Alert) error {
	if err := writeHeader(f, AlertsSheet, st.header, AlertHeader, 18); err != nil {
		return err
	}
	if err := f.SetColWidth(AlertsSheet, "E", "E", 48); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, a := range alerts {
		row := []interface{}{
			a.CreatedAt.Format(timeLayout), string(a.Kind), string(a.Severity), string(a.Status()), a.Message,
			deref(a.AcknowledgedBy), formatTime(a.AcknowledgedAt), formatTime(a.ResolvedAt),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(AlertsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write alert row %d: %w", i+2, err)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}
