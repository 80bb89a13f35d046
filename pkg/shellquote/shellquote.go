// Package shellquote renders external commands as pasteable shell lines for debug logs.
package shellquote

import (
	"strings"
)

// safe lists characters that never need quoting.
const safe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_@%+=:,./-"

// Quote returns s as a bash/zsh-safe word, double-quoting only when needed.
// Inside double quotes \ " $ ` are escaped.
func Quote(s string) string {
	if s == "" {
		return `""`
	}

	if strings.Trim(s, safe) == "" {
		return s
	}

	var b strings.Builder

	b.WriteByte('"')

	for _, r := range s {
		switch r {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}

	b.WriteByte('"')

	return b.String()
}

// Join constructs a shell-pasteable command line from bin and args.
func Join(bin string, args []string) string {
	var line strings.Builder

	line.WriteString(Quote(bin))

	for _, arg := range args {
		line.WriteByte(' ')
		line.WriteString(Quote(arg))
	}

	return line.String()
}
