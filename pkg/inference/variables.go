/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: variables.go
Description: Variable association extractor. Finds short identifiers followed by a
recognized domain-bearing property (r.server, $t.api) in raw script text.
*/

package inference

import (
	"regexp"
	"strings"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// MaxIdentifierLength caps the identifiers the extractor recognizes
const MaxIdentifierLength = 3

// VariableGroup holds every association recorded for one identifier
type VariableGroup struct {
	Identifier   string                           `json:"variable"`
	Associations []interfaces.VariableAssociation `json:"associations"`
}

// VariableExtractor is a purely syntactic scanner. It does not check that the identifier
// is a variable in scope, so minified code can yield false positives.
type VariableExtractor struct {
	properties []string
	pattern    *regexp.Regexp
}

// NewVariableExtractor builds an extractor for the given property vocabulary
func NewVariableExtractor(properties []string) *VariableExtractor {
	if len(properties) == 0 {
		properties = interfaces.DefaultProperties
	}
	quoted := make([]string, len(properties))
	for i, p := range properties {
		quoted[i] = regexp.QuoteMeta(p)
	}
	expr := `([A-Za-z0-9$_]{1,3})\.(` + strings.Join(quoted, "|") + `)\b`
	return &VariableExtractor{
		properties: append([]string(nil), properties...),
		pattern:    regexp.MustCompile(expr),
	}
}

// Properties returns the recognized vocabulary
func (e *VariableExtractor) Properties() []string {
	return append([]string(nil), e.properties...)
}

// Extract returns matches grouped by identifier in first-seen order.
// Repeated matches are kept.
func (e *VariableExtractor) Extract(text string) []VariableGroup {
	var groups []VariableGroup
	index := make(map[string]int)
	prevEnd := -1
	for _, m := range e.pattern.FindAllStringSubmatchIndex(text, -1) {
		// a match inside a longer identifier is dropped, unless it directly follows
		// the previous match
		if start := m[0]; start > 0 && isIdentByte(text[start-1]) && start != prevEnd {
			continue
		}
		prevEnd = m[1]
		ident := text[m[2]:m[3]]
		assoc := interfaces.VariableAssociation{
			Identifier:  ident,
			Property:    text[m[4]:m[5]],
			MatchedText: text[m[0]:m[1]],
		}
		i, ok := index[ident]
		if !ok {
			i = len(groups)
			index[ident] = i
			groups = append(groups, VariableGroup{Identifier: ident})
		}
		groups[i].Associations = append(groups[i].Associations, assoc)
	}
	return groups
}

func isIdentByte(b byte) bool {
	return b == '$' || b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// Flatten returns all associations of groups in group order
func Flatten(groups []VariableGroup) []interfaces.VariableAssociation {
	var out []interfaces.VariableAssociation
	for _, g := range groups {
		out = append(out, g.Associations...)
	}
	return out
}
