// Package output writes filtered product rows to disk.
//
// Writers follow a Begin, Write, Commit sequence. Nothing appears at the
// destination path until Commit succeeds; Abort discards the partial file.
package output

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat parses a format name, case-insensitively. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want csv or parquet)", s)
	}
}

// ContentType returns the MIME type used when serving or publishing the file.
func (f Format) ContentType() string {
	if f == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv; charset=utf-8"
}

// Kind is the value type of an output column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
)

// Field describes one output column.
type Field struct {
	Name string
	Kind Kind
}

// Writer receives rows whose cells hold normalized text: integers in base 10,
// floats in round-trip form, booleans as True or False. Invalid cells are null.
type Writer interface {
	Begin(fields []Field) error
	Write(row []pgtype.Text) error
	Commit() error
	Abort()
}

// NewWriter returns a writer for format that will produce path.
func NewWriter(format Format, path string) (Writer, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(path), nil
	case FormatParquet:
		return NewParquetWriter(path), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want csv or parquet)", format)
	}
}
