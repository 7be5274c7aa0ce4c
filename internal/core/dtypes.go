package core

// DefaultDtypeOverrides lists the columns of the Open Food Facts export that are
// always read as text. They hold codes, timestamps and free text that often look
// numeric in one part of the file and not in another.
var DefaultDtypeOverrides = map[string]FieldType{
	"code":                           FieldText,
	"created_t":                      FieldText,
	"last_modified_t":                FieldText,
	"cities":                         FieldText,
	"allergens_fr":                   FieldText,
	"cities_tags":                    FieldText,
	"emb_codes":                      FieldText,
	"emb_codes_tags":                 FieldText,
	"first_packaging_code_geo":       FieldText,
	"generic_name":                   FieldText,
	"ingredients_from_palm_oil_tags": FieldText,
	"origins":                        FieldText,
	"origins_tags":                   FieldText,
	"stores":                         FieldText,
	"serving_quantity":               FieldText,
}

// DtypeOverrides returns the default overrides plus extra text columns.
// The result is a new map; DefaultDtypeOverrides is never modified.
func DtypeOverrides(extraText ...string) map[string]FieldType {
	out := make(map[string]FieldType, len(DefaultDtypeOverrides)+len(extraText))
	for k, v := range DefaultDtypeOverrides {
		out[k] = v
	}
	for _, c := range extraText {
		out[c] = FieldText
	}
	return out
}
