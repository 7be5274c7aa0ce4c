package output

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/jackc/pgx/v5/pgtype"
)

// BatchRows is the number of rows buffered per Parquet record batch.
var BatchRows = 64 * 1024

// ParquetWriter writes a Snappy-compressed Parquet file with one nullable
// column per field.
type ParquetWriter struct {
	path    string
	file    *AtomicFile
	buf     *bufio.Writer
	schema  *arrow.Schema
	builder *array.RecordBuilder
	pw      *pqarrow.FileWriter
	kinds   []Kind
	pending int
}

// NewParquetWriter returns a writer that will produce path.
func NewParquetWriter(path string) *ParquetWriter {
	return &ParquetWriter{path: path}
}

func arrowType(k Kind) arrow.DataType {
	switch k {
	case KindInt:
		return arrow.PrimitiveTypes.Int64
	case KindFloat:
		return arrow.PrimitiveTypes.Float64
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// Begin creates the temporary file and the Parquet writer for fields.
func (w *ParquetWriter) Begin(fields []Field) error {
	if w.file != nil {
		return errors.New("parquet writer already started")
	}

	arrowFields := make([]arrow.Field, len(fields))
	w.kinds = make([]Kind, len(fields))
	for i, fd := range fields {
		arrowFields[i] = arrow.Field{Name: fd.Name, Type: arrowType(fd.Kind), Nullable: true}
		w.kinds[i] = fd.Kind
	}
	w.schema = arrow.NewSchema(arrowFields, nil)

	f, err := CreateAtomic(w.path)
	if err != nil {
		return err
	}
	w.file = f
	// bufio.Writer is not an io.Closer, so closing the Parquet writer leaves the file open for Commit.
	w.buf = bufio.NewWriterSize(f, writeBufferSize)

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	pw, err := pqarrow.NewFileWriter(w.schema, w.buf, props, arrowProps)
	if err != nil {
		f.Abort()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	w.pw = pw
	w.builder = array.NewRecordBuilder(memory.DefaultAllocator, w.schema)
	return nil
}

// Write appends one row to the current batch.
func (w *ParquetWriter) Write(row []pgtype.Text) error {
	if len(row) != len(w.kinds) {
		return fmt.Errorf("row has %d cells, want %d", len(row), len(w.kinds))
	}

	for i, cell := range row {
		if err := w.append(i, cell); err != nil {
			return fmt.Errorf("column %s: %w", w.schema.Field(i).Name, err)
		}
	}

	w.pending++
	if w.pending >= BatchRows {
		return w.flush()
	}
	return nil
}

func (w *ParquetWriter) append(i int, cell pgtype.Text) error {
	fb := w.builder.Field(i)
	if !cell.Valid {
		fb.AppendNull()
		return nil
	}

	switch w.kinds[i] {
	case KindInt:
		n, err := strconv.ParseInt(cell.String, 10, 64)
		if err != nil {
			return err
		}
		fb.(*array.Int64Builder).Append(n)
	case KindFloat:
		f, err := strconv.ParseFloat(cell.String, 64)
		if err != nil {
			return err
		}
		fb.(*array.Float64Builder).Append(f)
	case KindBool:
		fb.(*array.BooleanBuilder).Append(cell.String == "True")
	default:
		fb.(*array.StringBuilder).Append(cell.String)
	}
	return nil
}

func (w *ParquetWriter) flush() error {
	if w.pending == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	w.pending = 0
	return w.pw.Write(rec)
}

// Commit writes the last batch, closes the Parquet footer and moves the file into place.
func (w *ParquetWriter) Commit() error {
	defer w.builder.Release()

	if err := w.flush(); err != nil {
		w.pw.Close()
		w.file.Abort()
		return err
	}
	if err := w.pw.Close(); err != nil {
		w.file.Abort()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Abort()
		return err
	}
	return w.file.Commit()
}

// Abort discards the partial file.
func (w *ParquetWriter) Abort() {
	if w.file == nil {
		return
	}
	if w.builder != nil {
		w.builder.Release()
		w.builder = nil
	}
	w.file.Abort()
}
