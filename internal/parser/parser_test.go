package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	pipeerrors "github.com/travelops/importhub/pkg/errors"
)

func TestParseCSV(t *testing.T) {
	data := "\uFEFFHotel Name,Room Type,Base Price\nGrand Plaza,Double,300\nSea View,Suite,520\n"

	table, err := Parse("rates.csv", strings.NewReader(data), Options{})
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}

	wantColumns := []string{"hotel_name", "room_type", "base_price"}
	if len(table.Columns) != len(wantColumns) {
		t.Fatalf("expected %d columns, got %d", len(wantColumns), len(table.Columns))
	}
	for i, want := range wantColumns {
		if table.Columns[i] != want {
			t.Fatalf("column %d: expected %q, got %q", i, want, table.Columns[i])
		}
	}
	if table.RawColumns[0] != "Hotel Name" {
		t.Fatalf("expected raw column preserved, got %q", table.RawColumns[0])
	}

	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0]["hotel_name"] != "Grand Plaza" {
		t.Fatalf("unexpected first row: %v", table.Rows[0])
	}
	if table.Rows[1]["base_price"] != "520" {
		t.Fatalf("unexpected second row: %v", table.Rows[1])
	}
}

func TestParseSkipsEmptyRowsAndPadsShortOnes(t *testing.T) {
	data := "name,ref,amount\n\nAhmed,TR-100,150\nSara,TR-101\n"

	table, err := Parse("ledger.csv", strings.NewReader(data), Options{})
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[1]["amount"] != "" {
		t.Fatalf("expected short row padded with empty amount, got %q", table.Rows[1]["amount"])
	}
}

func TestParseDuplicateColumnNames(t *testing.T) {
	data := "price,price,price\n1,2,3\n"

	table, err := Parse("dup.csv", strings.NewReader(data), Options{})
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	want := []string{"price", "price_2", "price_3"}
	for i, column := range want {
		if table.Columns[i] != column {
			t.Fatalf("column %d: expected %q, got %q", i, column, table.Columns[i])
		}
	}
	if table.Rows[0]["price_3"] != "3" {
		t.Fatalf("unexpected row: %v", table.Rows[0])
	}
}

func TestParseRowCap(t *testing.T) {
	data := "name\na\nb\nc\n"

	_, err := Parse("big.csv", strings.NewReader(data), Options{MaxRows: 2})
	if err == nil {
		t.Fatal("expected row cap error")
	}
	if !pipeerrors.IsCode(err, pipeerrors.CodeRowCapExceeded) {
		t.Fatalf("expected row cap code, got %v", err)
	}
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := Parse("notes.txt", strings.NewReader("hello"), Options{})
	if err == nil {
		t.Fatal("expected unsupported format error")
	}
	if !pipeerrors.IsCode(err, pipeerrors.CodeUnsupportedFormat) {
		t.Fatalf("expected unsupported format code, got %v", err)
	}
}

func TestParseNoHeader(t *testing.T) {
	_, err := Parse("empty.csv", strings.NewReader("\n\n"), Options{})
	if err == nil {
		t.Fatal("expected no header error")
	}
	if !pipeerrors.IsCode(err, pipeerrors.CodeNoHeaderRow) {
		t.Fatalf("expected no header code, got %v", err)
	}
}

// xlsxReader builds a one-sheet workbook in memory, one slice per row.
func xlsxReader(t *testing.T, rows [][]interface{}) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			t.Fatalf("set sheet row: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestParseExcel(t *testing.T) {
	r := xlsxReader(t, [][]interface{}{
		{"", ""},
		{"Hotel Name", "Base Price"},
		{"Grand Plaza", 300},
		{"Sea View", 520},
	})

	table, err := Parse("rates.xlsx", r, Options{})
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}

	// The blank first row is skipped; the header is the first non-empty row.
	if len(table.Columns) != 2 || table.Columns[0] != "hotel_name" || table.Columns[1] != "base_price" {
		t.Fatalf("unexpected columns: %v", table.Columns)
	}
	if table.RawColumns[0] != "Hotel Name" {
		t.Fatalf("expected raw column preserved, got %q", table.RawColumns[0])
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0]["hotel_name"] != "Grand Plaza" || table.Rows[0]["base_price"] != "300" {
		t.Fatalf("unexpected first row: %v", table.Rows[0])
	}
	if table.Rows[1]["base_price"] != "520" {
		t.Fatalf("unexpected second row: %v", table.Rows[1])
	}
}

func TestParseExcelRowCap(t *testing.T) {
	r := xlsxReader(t, [][]interface{}{
		{"name"},
		{"a"},
		{"b"},
		{"c"},
	})

	_, err := Parse("big.xlsx", r, Options{MaxRows: 2})
	if err == nil {
		t.Fatal("expected row cap error")
	}
	if !pipeerrors.IsCode(err, pipeerrors.CodeRowCapExceeded) {
		t.Fatalf("expected row cap code, got %v", err)
	}
}
