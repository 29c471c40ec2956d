package database

import "strings"

const escapedNUL = "\\u0000"

// sanitizeText repairs a serialized JSON document so that it is safe for
// TEXT/JSONB columns: invalid UTF-8 sequences are replaced and NUL bytes,
// which PostgreSQL rejects inside text values, are dropped.
func sanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "�")
	if strings.ContainsRune(s, 0) {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	// Escaped NULs survive UTF-8 repair; PostgreSQL rejects them in jsonb
	// just the same.
	if strings.Contains(s, escapedNUL) {
		s = strings.ReplaceAll(s, escapedNUL, "")
	}
	return s
}
