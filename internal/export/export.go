package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"checkin/internal/attendance"
)

// Column is one exported field.
type Column struct {
	Header string
	Value  func(attendance.Entry) string
}

// Schema is the ordered column list of an export.
type Schema []Column

// BasicSchema is the attendee sheet: names and phone, plus gender when the form asks for it.
func BasicSchema(withGender bool) Schema {
	s := Schema{
		{Header: "First Name", Value: func(e attendance.Entry) string { return e.FirstName }},
		{Header: "Other Names", Value: func(e attendance.Entry) string { return e.OtherNames }},
		{Header: "Last Name", Value: func(e attendance.Entry) string { return e.LastName }},
		{Header: "Phone Number", Value: func(e attendance.Entry) string { return e.Phone }},
	}
	if withGender {
		s = append(s, Column{Header: "Gender", Value: func(e attendance.Entry) string { return string(e.Gender) }})
	}
	return s
}

// FullSchema exports every stored field, as the admin dashboard does.
func FullSchema() Schema {
	return Schema{
		{Header: "id", Value: func(e attendance.Entry) string { return e.ID }},
		{Header: "first_name", Value: func(e attendance.Entry) string { return e.FirstName }},
		{Header: "other_names", Value: func(e attendance.Entry) string { return e.OtherNames }},
		{Header: "last_name", Value: func(e attendance.Entry) string { return e.LastName }},
		{Header: "phone", Value: func(e attendance.Entry) string { return e.Phone }},
		{Header: "gender", Value: func(e attendance.Entry) string { return string(e.Gender) }},
		{Header: "timestamp", Value: func(e attendance.Entry) string {
			if e.Timestamp.IsZero() {
				return ""
			}
			return e.Timestamp.UTC().Format(time.RFC3339)
		}},
	}
}

func (s Schema) headers() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Header
	}
	return out
}

func (s Schema) row(e attendance.Entry) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Value(e)
	}
	return out
}

// CSV renders a header line and one line per entry. Every cell is quoted with embedded
// quotes doubled, lines are separated by \n and the last record has no line break.
func CSV(entries []attendance.Entry, s Schema) []byte {
	var b bytes.Buffer
	writeRecord(&b, s.headers())
	for _, e := range entries {
		b.WriteByte('\n')
		writeRecord(&b, s.row(e))
	}
	return b.Bytes()
}

func writeRecord(b *bytes.Buffer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
}

// SheetName is the worksheet written by XLSX.
const SheetName = "Attendance"

// XLSX renders the same table as a workbook with one sheet.
func XLSX(entries []attendance.Entry, s Schema) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, 1, s.headers()); err != nil {
		return nil, err
	}
	for i, e := range entries {
		if err := setRow(f, i+2, s.row(e)); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func setRow(f *excelize.File, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	if err := f.SetSheetRow(SheetName, cell, &vals); err != nil {
		return fmt.Errorf("set row %d: %w", row, err)
	}
	return nil
}

// Filename returns "<prefix>_<YYYY-MM-DD>.<ext>" for the date of now.
func Filename(prefix string, now time.Time, ext string) string {
	if prefix == "" {
		prefix = "attendance"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("2006-01-02"), ext)
}
