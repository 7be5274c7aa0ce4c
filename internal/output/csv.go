package output

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Separator is the field separator of the CSV output.
const Separator = ';'

const writeBufferSize = 1 << 20

// CSVWriter writes semicolon-separated UTF-8 text with a header row and no
// index column. Null cells are written as empty fields.
//
// Quoting is minimal: only fields holding the separator, a double quote or a
// line break are quoted, so a value like " Bar" is written unquoted.
type CSVWriter struct {
	path   string
	file   *AtomicFile
	buf    *bufio.Writer
	record []string
}

// NewCSVWriter returns a writer that will produce path.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// Begin creates the temporary file and writes the header row.
func (w *CSVWriter) Begin(fields []Field) error {
	if w.file != nil {
		return errors.New("csv writer already started")
	}

	f, err := CreateAtomic(w.path)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, writeBufferSize)

	header := make([]string, len(fields))
	for i, fd := range fields {
		header[i] = fd.Name
	}
	w.record = make([]string, len(fields))

	return w.writeRecord(header)
}

// Write appends one row. The row must have one cell per field.
func (w *CSVWriter) Write(row []pgtype.Text) error {
	if len(row) != len(w.record) {
		return fmt.Errorf("row has %d cells, want %d", len(row), len(w.record))
	}
	for i, cell := range row {
		if cell.Valid {
			w.record[i] = cell.String
		} else {
			w.record[i] = ""
		}
	}
	return w.writeRecord(w.record)
}

// fieldNeedsQuotes reports whether field holds the separator, a quote or a line break.
func fieldNeedsQuotes(field string) bool {
	return strings.ContainsRune(field, Separator) || strings.ContainsAny(field, "\"\r\n")
}

// writeRecord writes one line. bufio errors are sticky, so only the last is checked.
func (w *CSVWriter) writeRecord(record []string) error {
	for i, field := range record {
		if i > 0 {
			w.buf.WriteRune(Separator)
		}
		if !fieldNeedsQuotes(field) {
			w.buf.WriteString(field)
			continue
		}
		w.buf.WriteByte('"')
		w.buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
		w.buf.WriteByte('"')
	}
	return w.buf.WriteByte('\n')
}

// Commit flushes buffered rows and moves the file into place.
func (w *CSVWriter) Commit() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Abort()
		return err
	}
	return w.file.Commit()
}

// Abort discards the partial file.
func (w *CSVWriter) Abort() {
	if w.file != nil {
		w.file.Abort()
	}
}
