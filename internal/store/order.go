package store

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// value ranks follow SQLite's ordering: missing/null, numbers, then text.
func fieldRank(v gjson.Result) int {
	switch v.Type {
	case gjson.Null:
		return 0
	case gjson.Number, gjson.True, gjson.False:
		return 1
	default:
		return 2
	}
}

func fieldNumber(v gjson.Result) float64 {
	switch v.Type {
	case gjson.True:
		return 1
	case gjson.False:
		return 0
	default:
		return v.Float()
	}
}

// isInteger reports whether v is a JSON number without fraction or exponent,
// which SQLite compares exactly rather than as a double.
func isInteger(v gjson.Result) bool {
	return v.Type == gjson.Number && !strings.ContainsAny(v.Raw, ".eE")
}

func fieldText(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return v.Raw
}

func compareField(a, b gjson.Result) int {
	ra, rb := fieldRank(a), fieldRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		if isInteger(a) && isInteger(b) {
			ia, ib := a.Int(), b.Int()
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			}
			return 0
		}
		na, nb := fieldNumber(a), fieldNumber(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(fieldText(a), fieldText(b))
	}
	return 0
}

// sortRecords orders records ascending by field, ties broken by id.
func sortRecords(records []Record, field string) {
	values := make(map[string]gjson.Result, len(records))
	for _, rec := range records {
		values[rec.ID] = gjson.GetBytes(rec.Body, field)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if c := compareField(values[records[i].ID], values[records[j].ID]); c != 0 {
			return c < 0
		}
		return records[i].ID < records[j].ID
	})
}
