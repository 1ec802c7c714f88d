// Package feed decodes uploaded catalog feeds (CSV, XLSX, JSON) into raw
// rows for validation. Decoding is strictly structural: cell values are
// passed through as strings and all typing happens in the validator.
package feed

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/keilo/catalogd/internal/pipeline"
)

// Format identifies a supported feed encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// DetectFormat maps a filename extension to a feed format.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported feed format %q", filepath.Ext(filename))
	}
}

// ContentType returns the MIME type used when archiving a feed.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// Decode reads a feed in the given format into raw rows.
func Decode(r io.Reader, format Format) ([]pipeline.RawRow, error) {
	switch format {
	case FormatCSV:
		return DecodeCSV(r)
	case FormatXLSX:
		return DecodeXLSX(r)
	case FormatJSON:
		return DecodeJSON(r)
	default:
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}
}

// DecodeJSON reads a JSON array of row objects.
func DecodeJSON(r io.Reader) ([]pipeline.RawRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raws []pipeline.RawRow
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("failed to decode JSON feed: %w", err)
	}
	return raws, nil
}

// DecodeCSV reads a header-mapped CSV feed. The first record names the
// columns; unknown columns are ignored so stores can keep extra bookkeeping
// columns in their sheets.
func DecodeCSV(r io.Reader) ([]pipeline.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are padded below
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := headerIndex(header)

	var raws []pipeline.RawRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if isBlank(record) {
			continue
		}
		raws = append(raws, rowFromRecord(record, cols))
	}
	return raws, nil
}

// DecodeXLSX reads the first sheet of an XLSX workbook with the same header
// mapping as CSV.
func DecodeXLSX(r io.Reader) ([]pipeline.RawRow, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX feed: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("XLSX feed has no sheets")
	}

	records, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read XLSX rows: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("XLSX feed has no header row")
	}
	cols := headerIndex(records[0])

	var raws []pipeline.RawRow
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		raws = append(raws, rowFromRecord(record, cols))
	}
	return raws, nil
}

// headerIndex maps normalized column names to their positions.
func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		name = strings.ReplaceAll(name, " ", "_")
		if name != "" {
			cols[name] = i
		}
	}
	return cols
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cell returns the named column's value, or "" when the column is absent or
// the record is short.
func cell(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func rowFromRecord(record []string, cols map[string]int) pipeline.RawRow {
	raw := pipeline.RawRow{
		Name:        cell(record, cols, "name"),
		Description: cell(record, cols, "description"),
		CategoryID:  cell(record, cols, "category_id"),
		DownloadURL: cell(record, cols, "download_url"),
		VideoURL:    cell(record, cols, "video_url"),
	}

	// Optional columns stay nil when absent so the validator can apply its
	// defaults instead of seeing an empty string.
	if v := cell(record, cols, "price"); v != "" {
		raw.Price = v
	}
	if v := cell(record, cols, "keywords"); v != "" {
		raw.Keywords = v
	}
	if v := cell(record, cols, "featured"); v != "" {
		raw.Featured = v
	}
	if v := cell(record, cols, "archived"); v != "" {
		raw.Archived = v
	}
	if v := cell(record, cols, "images"); v != "" {
		urls := strings.Split(v, "|")
		for _, u := range urls {
			if u = strings.TrimSpace(u); u != "" {
				raw.Images = append(raw.Images, u)
			}
		}
	}
	return raw
}
