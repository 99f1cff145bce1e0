package rewrite

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"rawsql/internal/domain"
)

// EncodeURL builds the key identifying one materializable resource:
//
//	<format>:<protocol>/<canonical path>[?k=v&...]
//
// Format args are appended with sorted keys. Strings are single-quoted and
// percent-encoded, nil is None and booleans are True/False, so the same
// arguments always produce the same key.
func EncodeURL(desc domain.ResourceDescriptor, canonicalPath string) string {
	var b strings.Builder
	b.WriteString(desc.Format)
	b.WriteByte(':')
	b.WriteString(desc.Protocol)
	b.WriteByte('/')
	b.WriteString(canonicalPath)

	if len(desc.FormatArgs) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(desc.FormatArgs))
	for k := range desc.FormatArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(encodeValue(desc.FormatArgs[k]))
	}
	return b.String()
}

func encodeValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case string:
		return quote("'" + v + "'")
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return quote(strconv.FormatFloat(v, 'g', -1, 64))
	default:
		return quote(fmt.Sprint(v))
	}
}

// quote percent-encodes every byte except ASCII letters, digits and "_.-/".
func quote(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '/':
		return true
	}
	return false
}
