package core

// infer.go decides the type of each projected column from a sample of rows.
//
// A column is int when every sampled value parses as an integer and none is
// missing, float when every present value is numeric, bool when every value is
// a True/False literal and none is missing, and text otherwise. A column with
// no value at all in the sample is float. Integers with gaps become float, the
// same way a numeric column holding NaN does.

type typeVotes struct {
	present  int
	missing  bool
	allInt   bool
	allFloat bool
	allBool  bool
}

func newTypeVotes() *typeVotes {
	return &typeVotes{allInt: true, allFloat: true, allBool: true}
}

func (v *typeVotes) add(raw string) {
	if IsNA(raw) {
		v.missing = true
		return
	}
	v.present++

	if v.allInt {
		if _, ok := parseInt(raw); !ok {
			v.allInt = false
		}
	}
	if v.allFloat {
		if _, ok := parseFloat(raw); !ok {
			v.allFloat = false
		}
	}
	if v.allBool {
		if _, ok := parseBool(raw); !ok {
			v.allBool = false
		}
	}
}

func (v *typeVotes) result() FieldType {
	switch {
	case v.present == 0:
		return FieldFloat
	case v.allInt && !v.missing:
		return FieldInt
	case v.allFloat:
		return FieldFloat
	case v.allBool && !v.missing:
		return FieldBool
	default:
		return FieldText
	}
}

// InferTypes returns a type for each input column in indexes. Columns named
// in overrides take the override type without looking at the sample.
func InferTypes(header []string, indexes []int, sample [][]string, overrides map[string]FieldType) []FieldType {
	types := make([]FieldType, len(indexes))

	for i, idx := range indexes {
		if t, ok := overrides[header[idx]]; ok {
			types[i] = t
			continue
		}

		votes := newTypeVotes()
		for _, rec := range sample {
			if idx < len(rec) {
				votes.add(rec[idx])
			} else {
				votes.add("")
			}
		}
		types[i] = votes.result()
	}

	return types
}
