package pebble

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kvdown/lib/query"
)

// Key layout:
//
//	c\x00<table>          -> primary key field name (catalog entry)
//	t\x00<table>\x00<key> -> encoded value
//
// Table names must not contain 0x00, which keeps the prefixes of two tables disjoint.
const (
	catalogTag = 'c'
	tableTag   = 't'
	sep        = 0x00
)

// Value kinds. The first byte of every stored value.
const (
	kindNil byte = iota
	kindString
	kindBytes
)

func checkTableName(table string) error {
	if table == "" || strings.IndexByte(table, sep) >= 0 {
		return &query.DriverError{Msg: fmt.Sprintf("invalid table name %q", table)}
	}
	return nil
}

func catalogKey(table string) []byte {
	k := make([]byte, 0, len(table)+2)
	k = append(k, catalogTag, sep)
	return append(k, table...)
}

func tablePrefix(table string) []byte {
	k := make([]byte, 0, len(table)+3)
	k = append(k, tableTag, sep)
	k = append(k, table...)
	return append(k, sep)
}

func dataKey(table string, key []byte) []byte {
	return append(tablePrefix(table), key...)
}

// tableBounds returns the [lower, upper) range covering all rows of table.
func tableBounds(table string) (lower, upper []byte) {
	lower = tablePrefix(table)
	upper = tablePrefix(table)
	upper[len(upper)-1] = sep + 1
	return lower, upper
}

func encodeValue(v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return []byte{kindNil}, nil
	case string:
		return append([]byte{kindString}, v...), nil
	case []byte:
		return append([]byte{kindBytes}, v...), nil
	default:
		return nil, &query.DriverError{Msg: fmt.Sprintf("unsupported value type %T", v)}
	}
}

func decodeValue(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, &query.DriverError{Msg: "corrupt value: missing kind"}
	}
	switch raw[0] {
	case kindNil:
		return nil, nil
	case kindString:
		return string(raw[1:]), nil
	case kindBytes:
		v := make([]byte, len(raw)-1)
		copy(v, raw[1:])
		return v, nil
	default:
		return nil, &query.DriverError{Msg: fmt.Sprintf("corrupt value: unknown kind %d", raw[0])}
	}
}
