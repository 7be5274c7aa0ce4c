package core

// convert.go turns raw tab-separated fields into typed cells.
//
// The export is messy in predictable ways:
//   - Missing values are spelled many ways (NaN, N/A, NULL, #N/A...)
//   - Numbers may carry "," as a thousands separator
//   - Columns that look numeric early in the file can turn to text later
//
// Every coerced cell is stored as pgtype.Text holding the normalized value, so
// the CSV writer, the Parquet writer and the Postgres loader share one row shape.

import (
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// naValues are the field contents read as null in addition to the empty string.
var naValues = map[string]bool{
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// IsNA reports whether a raw field is a missing value.
func IsNA(s string) bool {
	return s == "" || naValues[s]
}

// ThousandsSeparator is removed from numeric fields before parsing.
const ThousandsSeparator = ","

func cleanNumeric(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ThousandsSeparator, "")
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(cleanNumeric(s), 10, 64)
	return n, err == nil
}

func parseFloat(s string) (float64, bool) {
	c := cleanNumeric(s)
	// ParseFloat also accepts hex mantissas and underscores; neither is a decimal number.
	if strings.ContainsAny(c, "xX_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(c, 64)
	return f, err == nil
}

func parseBool(s string) (bool, bool) {
	switch strings.TrimSpace(s) {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	default:
		return false, false
	}
}

// formatFloat renders f in its shortest round-trip form. Integral values keep a
// trailing ".0" and very large or small magnitudes use exponent notation, so a
// float column never prints like an int column.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return ""
	}

	if f != 0 {
		e := strconv.FormatFloat(f, 'e', -1, 64)
		exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
		if exp < -4 || exp >= 16 {
			return e
		}
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ToCell coerces a raw field to typ. Missing values become a null cell in text
// and float columns. Int and bool columns cannot hold a null, so a missing value
// there is not ok, the same as a present value that is not a valid typ value.
func ToCell(raw string, typ FieldType) (cell pgtype.Text, ok bool) {
	if IsNA(raw) {
		return pgtype.Text{}, typ != FieldInt && typ != FieldBool
	}

	switch typ {
	case FieldInt:
		n, ok := parseInt(raw)
		if !ok {
			return pgtype.Text{}, false
		}
		return pgtype.Text{String: strconv.FormatInt(n, 10), Valid: true}, true

	case FieldFloat:
		f, ok := parseFloat(raw)
		if !ok {
			return pgtype.Text{}, false
		}
		if math.IsNaN(f) {
			return pgtype.Text{}, true
		}
		return pgtype.Text{String: formatFloat(f), Valid: true}, true

	case FieldBool:
		b, ok := parseBool(raw)
		if !ok {
			return pgtype.Text{}, false
		}
		return pgtype.Text{String: formatBool(b), Valid: true}, true

	default:
		return pgtype.Text{String: raw, Valid: true}, true
	}
}
