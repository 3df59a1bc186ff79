/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: paths.go
Description: Path classifier. Generalizes a URL path into an exact route or a wildcard
route anchored at the static prefix that precedes the first dynamic segment.
*/

package inference

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// Segment classification reasons
const (
	ReasonUUID   = "uuid"
	ReasonHexRun = "hex-run"
	ReasonDigits = "digits-long"
)

// PathPattern is the generalized form of one path
type PathPattern struct {
	Pattern string              `json:"pattern"`
	Kind    interfaces.PathKind `json:"kind"`
	// CutIndex is the index of the first dynamic segment, -1 if none
	CutIndex int    `json:"cut_index"`
	Reason   string `json:"reason,omitempty"`
}

// PathClassifier decides whether path segments are runtime parameters
type PathClassifier struct {
	minLength int
	hexRun    *regexp.Regexp
}

// NewPathClassifier creates a classifier. A segment containing a digit is dynamic when
// longer than minLength; any run of hexRun hex characters is dynamic.
func NewPathClassifier(minLength, hexRun int) *PathClassifier {
	if minLength <= 0 {
		minLength = interfaces.DefaultSegmentMinLength
	}
	if hexRun <= 0 {
		hexRun = interfaces.DefaultHexRunLength
	}
	return &PathClassifier{
		minLength: minLength,
		hexRun:    regexp.MustCompile(fmt.Sprintf(`[0-9a-fA-F]{%d,}`, hexRun)),
	}
}

// ClassifySegment reports whether a single segment is dynamic and why
func (c *PathClassifier) ClassifySegment(seg string) (bool, string) {
	if isCanonicalUUID(seg) {
		return true, ReasonUUID
	}
	if c.hexRun.MatchString(seg) {
		return true, ReasonHexRun
	}
	if strings.IndexFunc(seg, unicode.IsDigit) >= 0 && utf8.RuneCountInString(seg) > c.minLength {
		return true, ReasonDigits
	}
	return false, ""
}

// Generalize turns a path into a route pattern.
// Scanning stops at the leftmost dynamic segment; anything after it is not considered.
func (c *PathClassifier) Generalize(path string) PathPattern {
	segments := Segments(path)
	prefix := make([]string, 0, len(segments))
	for i, seg := range segments {
		dynamic, reason := c.ClassifySegment(seg)
		if !dynamic {
			prefix = append(prefix, seg)
			continue
		}
		if i == 0 {
			// never emit a rule that would match the whole root
			return PathPattern{
				Pattern:  "/" + seg + "/*",
				Kind:     interfaces.PathWildcard,
				CutIndex: 0,
				Reason:   reason,
			}
		}
		return PathPattern{
			Pattern:  "/" + strings.Join(prefix, "/") + "/*",
			Kind:     interfaces.PathWildcard,
			CutIndex: i,
			Reason:   reason,
		}
	}
	if path == "" {
		path = "/"
	}
	return PathPattern{Pattern: path, Kind: interfaces.PathStatic, CutIndex: -1}
}

// Segments splits a path into its non-empty segments
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isCanonicalUUID accepts only the 8-4-4-4-12 hex form
func isCanonicalUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}
