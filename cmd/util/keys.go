package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/txcache/lib/keys"
)

// ParseKey reads a key given on the command line. Go escapes like \xff and
// \x00 are allowed.
func ParseKey(s string) ([]byte, error) {
	unquoted, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return nil, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return []byte(unquoted), nil
}

// ParseSelector reads a key selector of the form <op><key>[+-offset] where op
// is one of >=, >, <=, <. Without an operator >= is assumed. The offset is
// added to the selector, so ">=a+1" selects the key after the first key >= a.
//
// A literal '+' or '-' at the end of a key can be written as \x2b or \x2d.
func ParseSelector(s string) (keys.KeySelector, error) {
	var build func([]byte) keys.KeySelector
	switch {
	case strings.HasPrefix(s, ">="):
		build, s = keys.FirstGreaterOrEqual, s[2:]
	case strings.HasPrefix(s, "<="):
		build, s = keys.LastLessOrEqual, s[2:]
	case strings.HasPrefix(s, ">"):
		build, s = keys.FirstGreaterThan, s[1:]
	case strings.HasPrefix(s, "<"):
		build, s = keys.LastLessThan, s[1:]
	default:
		build = keys.FirstGreaterOrEqual
	}

	offset := 0
	if i := strings.LastIndexAny(s, "+-"); i >= 0 {
		if n, err := strconv.Atoi(s[i:]); err == nil {
			offset, s = n, s[:i]
		}
	}

	key, err := ParseKey(s)
	if err != nil {
		return keys.KeySelector{}, err
	}
	return build(key).Add(offset), nil
}

// FormatKey renders a key for output, non printable bytes are escaped
func FormatKey(key []byte) string {
	return strconv.Quote(string(key))
}
