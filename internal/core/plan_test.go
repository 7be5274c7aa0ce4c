package core

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testHeaders = []string{"code", "product_name", "main_category_fr", "countries_fr", "nutrition_grade_fr", "energy_100g"}

const testHeaderLine = "code\tproduct_name\tmain_category_fr\tcountries_fr\tnutrition_grade_fr\tenergy_100g\n"

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func buildPlan(t *testing.T, opts LoaderOptions, input string) *Plan {
	t.Helper()
	plan, err := NewLoader(opts).LoadAndFilter(context.Background(), writeInput(t, input), testHeaders, []string{"Snacks"}, []string{"France"})
	if err != nil {
		t.Fatalf("LoadAndFilter() error = %v", err)
	}
	return plan
}

func writeAndRead(t *testing.T, plan *Plan) (string, *WriteResult) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "db_file.csv")
	res, err := WriteOutput(context.Background(), plan, out, "")
	if err != nil {
		t.Fatalf("WriteOutput() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return string(data), res
}

func TestWriteOutput_EndToEnd(t *testing.T) {
	input := testHeaderLine +
		"0001\tBar\tSnacks\tFrance\tB\t1234\n" +
		"0002\tSoda\tBoissons\tBelgique\tc\t200\n" +
		"0003\t\tSnacks\tFrance\ta\t50\n"

	plan := buildPlan(t, LoaderOptions{}, input)
	got, res := writeAndRead(t, plan)

	want := "code;product_name;main_category_fr;countries_fr;nutrition_grade_fr;energy_100g\n" +
		"0001;Bar;Snacks;France;b;1234\n"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
	if res.RowsRead != 3 || res.RowsWritten != 1 {
		t.Errorf("RowsRead = %d, RowsWritten = %d, want 3 and 1", res.RowsRead, res.RowsWritten)
	}
}

func TestWriteOutput_Idempotent(t *testing.T) {
	input := testHeaderLine +
		"0001\tBar\tSnacks\tFrance\tB\t1234\n" +
		"0004\tChips\tSnacks\tFrance\tD\t2100\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	out := filepath.Join(t.TempDir(), "db_file.csv")
	for i := 0; i < 2; i++ {
		if _, err := WriteOutput(context.Background(), plan, out, ""); err != nil {
			t.Fatalf("run %d: WriteOutput() error = %v", i, err)
		}
	}
	first, _ := writeAndRead(t, plan)
	second, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if first != string(second) {
		t.Errorf("outputs differ:\n%s\n---\n%s", first, second)
	}
}

func TestWriteOutput_EmptyResult(t *testing.T) {
	input := testHeaderLine + "0002\tSoda\tBoissons\tBelgique\tc\t200\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	got, res := writeAndRead(t, plan)
	if got != "code;product_name;main_category_fr;countries_fr;nutrition_grade_fr;energy_100g\n" {
		t.Errorf("output = %q, want header only", got)
	}
	if res.RowsWritten != 0 {
		t.Errorf("RowsWritten = %d, want 0", res.RowsWritten)
	}
}

func TestLoadAndFilter_ColumnTypes(t *testing.T) {
	input := testHeaderLine + "0001\tBar\tSnacks\tFrance\tB\t1,234\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	want := []FieldType{FieldText, FieldText, FieldText, FieldText, FieldText, FieldInt}
	for i, c := range plan.Columns() {
		if c.Name != testHeaders[i] {
			t.Errorf("column %d name = %q, want %q", i, c.Name, testHeaders[i])
		}
		if c.Type != want[i] {
			t.Errorf("column %s type = %s, want %s", c.Name, c.Type, want[i])
		}
	}

	got, _ := writeAndRead(t, plan)
	if !strings.HasSuffix(got, "0001;Bar;Snacks;France;b;1234\n") {
		t.Errorf("thousands separator not removed: %q", got)
	}
}

func TestLoadAndFilter_ExtraTextOverride(t *testing.T) {
	input := testHeaderLine + "0001\tBar\tSnacks\tFrance\tB\t01234\n"
	plan := buildPlan(t, LoaderOptions{Overrides: DtypeOverrides("energy_100g")}, input)

	got, _ := writeAndRead(t, plan)
	if !strings.HasSuffix(got, "0001;Bar;Snacks;France;b;01234\n") {
		t.Errorf("text override should keep the raw value: %q", got)
	}
}

func TestWriteOutput_ShortRow(t *testing.T) {
	input := testHeaderLine + "0001\tBar\tSnacks\tFrance\tB\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	got, _ := writeAndRead(t, plan)
	if !strings.HasSuffix(got, "0001;Bar;Snacks;France;b;\n") {
		t.Errorf("short row should end with an empty field: %q", got)
	}
}

func TestWriteOutput_BOM(t *testing.T) {
	input := "\xEF\xBB\xBF" + testHeaderLine + "0001\tBar\tSnacks\tFrance\tB\t1234\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	got, _ := writeAndRead(t, plan)
	if !strings.HasPrefix(got, "code;") {
		t.Errorf("BOM leaked into output header: %q", got)
	}
}

func TestWriteOutput_LateCoercionError(t *testing.T) {
	input := testHeaderLine +
		"0001\tBar\tSnacks\tFrance\tB\t1234\n" +
		"0002\tSoda\tBoissons\tBelgique\tc\t200\n" +
		"0003\tChips\tSnacks\tFrance\tD\tlots\n"

	// a one-byte sample infers energy_100g from the first row only
	plan := buildPlan(t, LoaderOptions{SampleBytes: 1}, input)

	out := filepath.Join(t.TempDir(), "db_file.csv")
	_, err := WriteOutput(context.Background(), plan, out, "")

	var ce *CoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CoercionError, got %v", err)
	}
	if ce.Line != 4 || ce.Column != "energy_100g" || ce.Value != "lots" {
		t.Errorf("CoercionError = %+v, want line 4 column energy_100g value lots", ce)
	}
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("output should not exist after a failed run, stat err = %v", err)
	}
}

func TestWriteOutput_LateMissingInt(t *testing.T) {
	input := testHeaderLine +
		"0001\tBar\tSnacks\tFrance\tB\t1234\n" +
		"0002\tBaz\tSnacks\tFrance\tc\t\n"

	// energy_100g is inferred as int from the first row; the gap comes later
	plan := buildPlan(t, LoaderOptions{SampleBytes: 1}, input)
	if typ := plan.Columns()[5].Type; typ != FieldInt {
		t.Fatalf("energy_100g type = %s, want %s", typ, FieldInt)
	}

	out := filepath.Join(t.TempDir(), "db_file.csv")
	_, err := WriteOutput(context.Background(), plan, out, "")

	var ce *CoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CoercionError, got %v", err)
	}
	if ce.Line != 3 || ce.Column != "energy_100g" || ce.Value != "" {
		t.Errorf("CoercionError = %+v, want line 3 column energy_100g empty value", ce)
	}
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("output should not exist after a failed run, stat err = %v", err)
	}
}

func TestLoadAndFilter_Errors(t *testing.T) {
	t.Run("input not found", func(t *testing.T) {
		_, err := NewLoader(LoaderOptions{}).LoadAndFilter(context.Background(),
			filepath.Join(t.TempDir(), "missing.tsv"), testHeaders, nil, nil)
		if !errors.Is(err, ErrInputNotFound) {
			t.Errorf("expected ErrInputNotFound, got %v", err)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected fs.ErrNotExist, got %v", err)
		}
	})

	t.Run("missing column", func(t *testing.T) {
		headers := append(append([]string{}, testHeaders...), "fat_100g")
		_, err := NewLoader(LoaderOptions{}).LoadAndFilter(context.Background(),
			writeInput(t, testHeaderLine), headers, nil, nil)

		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("expected *FormatError, got %v", err)
		}
		if len(fe.Missing) != 1 || fe.Missing[0] != "fat_100g" {
			t.Errorf("Missing = %v, want [fat_100g]", fe.Missing)
		}
	})

	t.Run("predicate column not selected", func(t *testing.T) {
		headers := []string{"code", "product_name", "main_category_fr", "countries_fr"}
		_, err := NewLoader(LoaderOptions{}).LoadAndFilter(context.Background(),
			writeInput(t, testHeaderLine), headers, nil, nil)
		if !errors.Is(err, ErrNoPredicateColumn) {
			t.Errorf("expected ErrNoPredicateColumn, got %v", err)
		}
	})

	t.Run("too many fields", func(t *testing.T) {
		input := testHeaderLine + "0001\tBar\tSnacks\tFrance\tB\t1234\textra\n"
		_, err := NewLoader(LoaderOptions{}).LoadAndFilter(context.Background(),
			writeInput(t, input), testHeaders, nil, nil)

		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("expected *FormatError, got %v", err)
		}
		if fe.Line != 2 {
			t.Errorf("Line = %d, want 2", fe.Line)
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		input := testHeaderLine + "0001\tB\xffr\tSnacks\tFrance\tB\t1234\n"
		_, err := NewLoader(LoaderOptions{}).LoadAndFilter(context.Background(),
			writeInput(t, input), testHeaders, nil, nil)

		var encErr *EncodingError
		if !errors.As(err, &encErr) {
			t.Fatalf("expected *EncodingError, got %v", err)
		}
	})
}

func TestPlan_Materialize(t *testing.T) {
	input := testHeaderLine +
		"0001\tBar\tSnacks\tFrance\tB\t1234\n" +
		"0004\tChips\tSnacks\tFrance\tD\t2100\n" +
		"0005\tCake\tSnacks\tFrance\t\t300\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	frame, err := plan.Materialize(context.Background())
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if len(frame.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(frame.Rows))
	}
	if got := frame.ColumnNames(); len(got) != len(testHeaders) || got[0] != "code" {
		t.Errorf("ColumnNames() = %v", got)
	}
	if frame.Rows[1][0].String != "0004" || frame.Rows[1][4].String != "d" {
		t.Errorf("second row = %v, want code 0004 grade d", frame.Rows[1])
	}
}

func TestPlan_ContextCancelled(t *testing.T) {
	input := testHeaderLine + "0001\tBar\tSnacks\tFrance\tB\t1234\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "db_file.csv")
	_, err := WriteOutput(ctx, plan, out, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("output should not exist after cancellation, stat err = %v", err)
	}
}

func TestWriteOutput_UnwritableDirectory(t *testing.T) {
	input := testHeaderLine + "0001\tBar\tSnacks\tFrance\tB\t1234\n"
	plan := buildPlan(t, LoaderOptions{}, input)

	out := filepath.Join(t.TempDir(), "missing", "db_file.csv")
	_, err := WriteOutput(context.Background(), plan, out, "")

	var oe *OutputError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OutputError, got %v", err)
	}
}
