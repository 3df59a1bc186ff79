/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: diff.go
Description: Traffic diff engine. Partitions a newly observed batch of URLs against the
vendor's known traffic into matched-static, matched-dynamic and new buckets, and derives
location suggestions for the URLs it sees.
*/

package analysis

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// NewURL is an unseen URL with its static/dynamic label
type NewURL struct {
	URL    string `json:"url" yaml:"url"`
	Static bool   `json:"static" yaml:"static"`
}

// Suggestions are location hints derived from the diffed URLs
type Suggestions struct {
	// LocationBlocks are origin + first two segments of static URLs
	LocationBlocks []string `json:"locationBlocks" yaml:"location_blocks"`
	// DynamicPrefixes are the paths up to the first dynamic segment of dynamic URLs
	DynamicPrefixes []string `json:"dynamicPrefixes" yaml:"dynamic_prefixes"`
}

// TrafficDiff is the outcome of one diff pass.
// Known URLs absent from the batch appear in no bucket.
type TrafficDiff struct {
	MatchedStatic  []string    `json:"static" yaml:"matched_static"`
	MatchedDynamic []string    `json:"dynamic" yaml:"matched_dynamic"`
	New            []NewURL    `json:"new" yaml:"new"`
	Suggestions    Suggestions `json:"nginxSuggestions" yaml:"suggestions"`
	Skipped        []string    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// DiffEngine classifies full URLs with its own thresholds, independent of the path
// classifier's segment rule.
type DiffEngine struct {
	digitRun *regexp.Regexp
	hexRun   *regexp.Regexp
}

// NewDiffEngine creates a diff engine. A URL is dynamic when it contains digitRun
// consecutive digits or hexRun consecutive hex characters.
func NewDiffEngine(digitRun, hexRun int) *DiffEngine {
	if digitRun <= 0 {
		digitRun = interfaces.DefaultURLDigitRun
	}
	if hexRun <= 0 {
		hexRun = interfaces.DefaultHexRunLength
	}
	return &DiffEngine{
		digitRun: regexp.MustCompile(fmt.Sprintf(`[0-9]{%d,}`, digitRun)),
		hexRun:   regexp.MustCompile(fmt.Sprintf(`[0-9a-fA-F]{%d,}`, hexRun)),
	}
}

// IsStatic reports whether s contains neither a long digit run nor a long hex run
func (d *DiffEngine) IsStatic(s string) bool {
	return !d.digitRun.MatchString(s) && !d.hexRun.MatchString(s)
}

// Diff partitions batch against known. Duplicate URLs within the batch are reported once.
func (d *DiffEngine) Diff(known, batch []interfaces.Observation) *TrafficDiff {
	knownURLs := make(map[string]struct{}, len(known))
	for _, o := range known {
		knownURLs[o.URL] = struct{}{}
	}

	result := &TrafficDiff{}
	seen := make(map[string]struct{}, len(batch))
	locations := newOrderedSet()
	prefixes := newOrderedSet()

	for _, o := range batch {
		if _, dup := seen[o.URL]; dup {
			continue
		}
		seen[o.URL] = struct{}{}

		static := d.IsStatic(o.URL)
		if _, ok := knownURLs[o.URL]; ok {
			if static {
				result.MatchedStatic = append(result.MatchedStatic, o.URL)
			} else {
				result.MatchedDynamic = append(result.MatchedDynamic, o.URL)
			}
		} else {
			result.New = append(result.New, NewURL{URL: o.URL, Static: static})
		}

		if static {
			base, err := d.BasePath(o.URL)
			if err != nil {
				result.Skipped = append(result.Skipped, o.URL)
				continue
			}
			locations.add(base)
		} else {
			prefix, err := d.DynamicBasePath(o.URL)
			if err != nil {
				result.Skipped = append(result.Skipped, o.URL)
				continue
			}
			prefixes.add(prefix)
		}
	}

	result.Suggestions = Suggestions{
		LocationBlocks:  locations.items,
		DynamicPrefixes: prefixes.items,
	}
	return result
}

// BasePath returns the origin plus at most the first two path segments
func (d *DiffEngine) BasePath(rawURL string) (string, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return "", err
	}
	segs := nonEmpty(u.Path)
	if len(segs) > 2 {
		segs = segs[:2]
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, strings.Join(segs, "/")), nil
}

// DynamicBasePath returns the path up to the first segment this engine calls dynamic
// (the segment itself when it is the first one), or the full path when no segment is
// dynamic on its own
func (d *DiffEngine) DynamicBasePath(rawURL string) (string, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return "", err
	}
	segs := nonEmpty(u.Path)
	for i, seg := range segs {
		if !d.IsStatic(seg) {
			if i == 0 {
				return "/" + seg + "/", nil
			}
			return "/" + strings.Join(segs[:i], "/") + "/", nil
		}
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}

func parseAbsolute(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &interfaces.URLError{URL: rawURL, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &interfaces.URLError{URL: rawURL, Err: fmt.Errorf("not an absolute url")}
	}
	return u, nil
}

func nonEmpty(path string) []string {
	var out []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
