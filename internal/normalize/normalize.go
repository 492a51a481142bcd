// Package normalize turns raw parsed records into canonical destination rows:
// field names are cleaned and folded through the dataset alias table, unknown
// fields are dropped, and values are coerced to the column's declared type.
//
// Normalization is idempotent: feeding a canonical record back through
// Normalize yields the same record.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tmbulk/internal/schema"
	"tmbulk/pkg/records"
)

// nullLikes are raw values treated as absent regardless of column type.
var nullLikes = map[string]struct{}{
	"":           {},
	"nan":        {},
	"none":       {},
	"null":       {},
	"0000-00-00": {},
}

// CleanKey lowercases a raw field name and collapses every run of
// non-alphanumeric characters into a single underscore.
func CleanKey(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// Record maps a raw record onto the descriptor's canonical column set.
// Fields that resolve to no destination column are silently dropped;
// unparseable values become nil rather than failing the record.
func Record(raw records.Record, desc schema.Descriptor) records.Record {
	cols := desc.ColumnSet()
	out := make(records.Record, len(raw))
	for k, v := range raw {
		name := CleanKey(k)
		if alias, ok := desc.Aliases[name]; ok {
			name = alias
		}
		if _, ok := cols[name]; !ok {
			continue
		}
		out[name] = Value(v, desc.ColumnType(name))
	}
	return out
}

// Value coerces a single raw value to the given column type. Null-like
// values ("", "nan", "none", "null", "0000-00-00") become nil.
func Value(v any, typ schema.ColType) any {
	if v == nil {
		return nil
	}
	s, isString := v.(string)
	if isString {
		s = strings.TrimSpace(s)
		if _, null := nullLikes[strings.ToLower(s)]; null {
			return nil
		}
	}

	switch typ {
	case schema.TypeDate:
		if !isString {
			return v
		}
		return dateOrNil(s)
	case schema.TypeFlag:
		return Flag(v)
	case schema.TypeBigInt, schema.TypeInt:
		return intOrNil(v)
	default:
		if isString {
			return s
		}
		return v
	}
}

// Date converts an 8-digit YYYYMMDD value to ISO YYYY-MM-DD. A zero month or
// day means the source recorded only a partial date; those are dropped, as
// are calendar-invalid values like a February 30th. Canonical ISO input
// passes through unchanged.
func Date(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) == 10 && s[4] == '-' && s[7] == '-' {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "", fmt.Errorf("date %q: not a calendar date", s)
		}
		return s, nil
	}
	if len(s) != 8 {
		return "", fmt.Errorf("date %q: want YYYYMMDD", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("date %q: want YYYYMMDD", s)
		}
	}
	if s[4:6] == "00" || s[6:8] == "00" {
		return "", fmt.Errorf("date %q: zero month or day", s)
	}
	if _, err := time.Parse("20060102", s); err != nil {
		return "", fmt.Errorf("date %q: not a calendar date", s)
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:8], nil
}

func dateOrNil(s string) any {
	iso, err := Date(s)
	if err != nil {
		return nil
	}
	return iso
}

// Flag canonicalizes a truthy/falsy source value to the single characters
// "T" and "F". Numeric values map zero to "F" and anything else to "T".
// Text starting with "T" is true; any other non-empty text is false, the
// indicator elements in the bulk files carry free-form truthy spellings.
func Flag(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return "T"
		}
		return "F"
	case int:
		return boolFlag(t != 0)
	case int64:
		return boolFlag(t != 0)
	case float64:
		return boolFlag(t != 0)
	case string:
		s := strings.ToUpper(strings.TrimSpace(t))
		switch s {
		case "":
			return nil
		case "TRUE", "Y", "YES", "1", "1.0":
			return "T"
		case "FALSE", "N", "NO", "0", "0.0":
			return "F"
		}
		return boolFlag(s[0] == 'T')
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "T"
	}
	return "F"
}

func intOrNil(v any) any {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		s := strings.TrimSpace(t)
		// Leading zeros are common in serial numbers; an all-zero value is
		// a placeholder, not an identifier.
		if strings.Trim(s, "0") == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Some exports render integers as "12345.0".
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return nil
			}
			return int64(f)
		}
		return n
	default:
		return nil
	}
}
