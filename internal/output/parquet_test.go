package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/jackc/pgx/v5/pgtype"
)

func readParquet(t *testing.T, path string) arrow.Table {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })

	pf, err := file.NewParquetReader(f, file.WithReadProps(&parquet.ReaderProperties{}))
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	t.Cleanup(func() { pf.Close() })

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		t.Fatalf("arrow reader: %v", err)
	}

	table, err := reader.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	t.Cleanup(table.Release)
	return table
}

func TestParquetWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewParquetWriter(path)

	fields := []Field{
		{Name: "code", Kind: KindText},
		{Name: "energy_100g", Kind: KindInt},
		{Name: "fat_100g", Kind: KindFloat},
		{Name: "organic", Kind: KindBool},
	}
	if err := w.Begin(fields); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	rows := [][]pgtype.Text{
		{text("0001"), text("1234"), text("1.5"), text("True")},
		{text("0002"), {}, text("2.0"), text("False")},
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	table := readParquet(t, path)

	if table.NumRows() != 2 {
		t.Fatalf("NumRows = %d, want 2", table.NumRows())
	}
	if table.NumCols() != 4 {
		t.Fatalf("NumCols = %d, want 4", table.NumCols())
	}

	wantTypes := []arrow.Type{arrow.STRING, arrow.INT64, arrow.FLOAT64, arrow.BOOL}
	for i, want := range wantTypes {
		if got := table.Schema().Field(i).Type.ID(); got != want {
			t.Errorf("field %d type = %v, want %v", i, got, want)
		}
	}

	codes := table.Column(0).Data().Chunk(0).(*array.String)
	if codes.Value(0) != "0001" {
		t.Errorf("code[0] = %q, want %q (leading zeros kept)", codes.Value(0), "0001")
	}

	energy := table.Column(1).Data().Chunk(0).(*array.Int64)
	if energy.Value(0) != 1234 {
		t.Errorf("energy[0] = %d, want 1234", energy.Value(0))
	}
	if !energy.IsNull(1) {
		t.Error("energy[1] should be null")
	}
}

func TestParquetWriter_BadNumber(t *testing.T) {
	w := NewParquetWriter(filepath.Join(t.TempDir(), "out.parquet"))
	if err := w.Begin([]Field{{Name: "n", Kind: KindInt}}); err != nil {
		t.Fatal(err)
	}
	defer w.Abort()

	if err := w.Write([]pgtype.Text{text("abc")}); err == nil {
		t.Error("Write() expected error for non-integer cell")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"csv", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{"parquet", FormatParquet, false},
		{"xlsx", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
