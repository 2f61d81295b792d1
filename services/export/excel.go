// Package exportsvc renders roster downloads for district administrators.
package exportsvc

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/shulehq/shule/core/student"
)

const rosterSheet = "Roster"

var rosterHeader = []string{
	"First Name", "Last Name", "Grade", "Status",
	"License Type", "License Status", "License Expires", "Enrolled On",
}

type RosterExporter struct{}

func NewRosterExporter() *RosterExporter { return &RosterExporter{} }

// WriteRoster writes the students as an xlsx workbook to w.
func (ex *RosterExporter) WriteRoster(w io.Writer, students []student.Student) error {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName(f.GetSheetName(0), rosterSheet)

	for col, title := range rosterHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return errors.Wrap(err, "locating header cell")
		}
		if err = f.SetCellValue(rosterSheet, cell, title); err != nil {
			return errors.Wrap(err, "writing roster header")
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		lastCol, _ := excelize.CoordinatesToCellName(len(rosterHeader), 1)
		_ = f.SetCellStyle(rosterSheet, "A1", lastCol, style)
	}

	for i, stu := range students {
		values := []interface{}{
			stu.FirstName,
			stu.LastName,
			stu.GradeLevel,
			string(stu.Status),
			string(stu.License.Type),
			string(stu.License.Status),
			formatDate(stu.License.ExpiresAt),
			formatDate(stu.CreatedAt),
		}
		for col, val := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return errors.Wrap(err, "locating roster cell")
			}
			if err = f.SetCellValue(rosterSheet, cell, val); err != nil {
				return errors.Wrap(err, fmt.Sprintf("writing roster row %d", i+1))
			}
		}
	}

	if err = f.Write(w); err != nil {
		return errors.Wrap(err, "writing roster workbook")
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
