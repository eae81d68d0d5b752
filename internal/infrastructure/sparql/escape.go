package sparql

import (
	"strings"
	"time"
)

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeString renders s as a quoted SPARQL literal.
func EscapeString(s string) string {
	return `"""` + stringEscaper.Replace(s) + `"""`
}

// EscapeURI renders u as an IRI reference.
func EscapeURI(u string) string {
	return "<" + strings.NewReplacer(`>`, `\>`, `<`, `\<`, " ", "%20").Replace(u) + ">"
}

// EscapeDateTime renders t as an xsd:dateTime literal.
func EscapeDateTime(t time.Time) string {
	return `"` + t.UTC().Format(time.RFC3339) + `"^^<http://www.w3.org/2001/XMLSchema#dateTime>`
}
