package asset

import "strings"

// SplitScript splits an SQL script into statements on delim. Delimiters
// inside single- or double-quoted literals do not split. Statements are
// trimmed and empty ones dropped.
func SplitScript(script string, delim rune) []string {
	var stmts []string
	var sb strings.Builder
	var quote rune

	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			stmts = append(stmts, s)
		}
		sb.Reset()
	}

	for _, r := range script {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == delim:
			flush()
			continue
		}
		sb.WriteRune(r)
	}
	flush()
	return stmts
}
