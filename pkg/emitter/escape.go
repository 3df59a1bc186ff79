/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: escape.go
Description: Escaping helpers for emitted configuration. Lua pattern escaping uses an
explicit metacharacter table; string quoting covers Lua and nginx literals.
*/

package emitter

import "strings"

// luaPatternMagic maps every Lua pattern metacharacter to its escaped form
var luaPatternMagic = map[rune]string{
	'(': "%(",
	')': "%)",
	'.': "%.",
	'%': "%%",
	'+': "%+",
	'-': "%-",
	'*': "%*",
	'?': "%?",
	'[': "%[",
	']': "%]",
	'^': "%^",
	'$': "%$",
}

// EscapePattern escapes s so that it matches itself literally as a Lua pattern
func EscapePattern(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if esc, ok := luaPatternMagic[r]; ok {
			b.WriteString(esc)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeReplacement escapes s for use as a gsub replacement string
func EscapeReplacement(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// QuoteLua renders s as a double-quoted Lua string literal
func QuoteLua(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}

// QuoteNginx renders s as a double-quoted nginx string
func QuoteNginx(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
