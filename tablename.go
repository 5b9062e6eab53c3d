package daoware

import (
	"reflect"
	"strings"
	"unicode"
)

// TableNamer lets a record type pick its own table name.
// It takes precedence over DefaultTableName but not over an explicit
// Options.TableName.
type TableNamer interface {
	TableName() string
}

// DefaultTableName derives a table name from a record type: pointers are
// dereferenced and the type name is converted to snake_case
// (UserProfile -> user_profile). Unnamed types resolve to "record".
func DefaultTableName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		return "record"
	}
	return snakeCase(name)
}

func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// break before an upper rune that starts a new word:
			// lower->Upper boundary, or end of an acronym (HTTPServer).
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tableNameOf resolves the table for T once, at DAO construction.
func tableNameOf[T any](override string, resolver func(reflect.Type) string) string {
	if override != "" {
		return override
	}
	var rec T
	if n, ok := any(rec).(TableNamer); ok {
		return n.TableName()
	}
	if n, ok := any(&rec).(TableNamer); ok {
		return n.TableName()
	}
	if resolver == nil {
		resolver = DefaultTableName
	}
	return resolver(reflect.TypeFor[T]())
}
