// Package parser turns an uploaded delimited or spreadsheet file into an
// ordered sequence of flat key/value rows plus the ordered source column
// names. Nothing downstream ever touches file bytes again.
package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	pipeerrors "github.com/travelops/importhub/pkg/errors"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// RawRow is one source row keyed by sanitized column name. Values are kept
// as received apart from leading/trailing whitespace.
type RawRow = map[string]string

// RawTable is the parse result handed to the column mapper.
type RawTable struct {
	Columns    []string
	RawColumns []string
	Rows       []RawRow
}

// Options bound parsing so an oversized upload is rejected instead of
// growing memory without limit.
type Options struct {
	MaxRows int
}

// Parse dispatches on the file extension. Unsupported extensions are an
// input error; no job is created for them.
func Parse(fileName string, r io.Reader, opts Options) (*RawTable, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(r, opts)
	case ".xlsx":
		return parseExcel(r, opts)
	default:
		return nil, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeUnsupportedFormat,
			"unsupported file format %q", ext).
			WithSuggestion("upload a .csv or .xlsx file")
	}
}

func parseCSV(r io.Reader, opts Options) (*RawTable, error) {
	reader := bufio.NewReader(r)
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	var header []string
	var rawHeader []string
	rows := []RawRow{}

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pipeerrors.Wrap(err, pipeerrors.CategoryParse, pipeerrors.CodeUnexpected, "failed to read csv")
		}

		if rowEmpty(record) {
			continue
		}

		if header == nil {
			header = sanitizeColumns(record)
			rawHeader = trimAll(record)
			continue
		}

		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			return nil, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeRowCapExceeded,
				"file exceeds the %d row limit", opts.MaxRows).
				WithSuggestion("split the file and upload it in parts")
		}

		rows = append(rows, recordToRow(header, record))
	}

	if header == nil {
		return nil, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeNoHeaderRow, "no header row detected")
	}

	return &RawTable{Columns: header, RawColumns: rawHeader, Rows: rows}, nil
}

func parseExcel(r io.Reader, opts Options) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryParse, pipeerrors.CodeUnexpected, "failed to open xlsx")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeEmptyFile, "excel file has no sheets")
	}

	iter, err := f.Rows(sheets[0])
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryParse, pipeerrors.CodeUnexpected, "failed to read rows from xlsx")
	}
	defer func() { _ = iter.Close() }()

	var header []string
	var rawHeader []string
	rows := []RawRow{}

	for iter.Next() {
		record, err := iter.Columns()
		if err != nil {
			return nil, pipeerrors.Wrap(err, pipeerrors.CategoryParse, pipeerrors.CodeUnexpected, "failed to read xlsx row")
		}

		if rowEmpty(record) {
			continue
		}

		if header == nil {
			header = sanitizeColumns(record)
			rawHeader = trimAll(record)
			continue
		}

		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			return nil, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeRowCapExceeded,
				"file exceeds the %d row limit", opts.MaxRows).
				WithSuggestion("split the file and upload it in parts")
		}

		rows = append(rows, recordToRow(header, record))
	}

	if header == nil {
		return nil, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeNoHeaderRow, "no header row detected")
	}

	return &RawTable{Columns: header, RawColumns: rawHeader, Rows: rows}, nil
}

func rowEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimAll(record []string) []string {
	trimmed := make([]string, len(record))
	for i, cell := range record {
		trimmed[i] = strings.TrimSpace(cell)
	}
	return trimmed
}

func sanitizeColumns(raw []string) []string {
	columns := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, ".", " ")
		name = strings.ReplaceAll(name, "-", " ")
		name = strings.Join(strings.Fields(strings.ToLower(name)), "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		columns[idx] = name
	}

	return columns
}

func recordToRow(header, record []string) RawRow {
	row := make(RawRow, len(header))
	for i, column := range header {
		if i < len(record) {
			row[column] = strings.TrimSpace(record[i])
		} else {
			row[column] = ""
		}
	}
	return row
}
