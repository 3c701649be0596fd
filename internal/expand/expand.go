package expand

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var re = regexp.MustCompile(`\$\{([a-zA-Z0-9_.-]+)\}`)

// Expand replaces every ${name} in v with mapping(name).
func Expand(v string, mapping func(string) string) string {
	return re.ReplaceAllStringFunc(v, func(s string) string {
		return mapping(s[2 : len(s)-1])
	})
}

// Env resolves "env.NAME" to the value of the environment variable NAME.
// Any other key resolves to the empty string.
func Env(key string) string {
	if name, ok := strings.CutPrefix(key, "env."); ok {
		return os.Getenv(name)
	}
	return ""
}

// Unescape decodes the backslash escapes \r, \n, \t, \\, \0 and \xNN.
func Unescape(s string) (string, error) {
	i := strings.IndexByte(s, '\\')
	if i < 0 {
		return s, nil
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i >= 0 {
		sb.WriteString(s[:i])
		if i+1 >= len(s) {
			return "", fmt.Errorf("dangling backslash at the end of %q", s)
		}
		switch c := s[i+1]; c {
		case 'r':
			sb.WriteByte('\r')
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case '0':
			sb.WriteByte(0)
		case '\\':
			sb.WriteByte('\\')
		case 'x':
			if i+4 > len(s) {
				return "", fmt.Errorf("truncated \\x escape in %q", s)
			}
			v, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid \\x escape in %q", s)
			}
			sb.WriteByte(byte(v))
			s = s[i+4:]
			i = strings.IndexByte(s, '\\')
			continue
		default:
			return "", fmt.Errorf("unknown escape \\%c in %q", c, s)
		}
		s = s[i+2:]
		i = strings.IndexByte(s, '\\')
	}
	sb.WriteString(s)
	return sb.String(), nil
}
