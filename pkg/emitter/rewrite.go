/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: rewrite.go
Description: Body rewriting. Mirrors, in Go, the substitutions the emitted Lua performs on
vendor scripts so they can be previewed and tested without a running proxy.
*/

package emitter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// orderDomains returns distinct non-empty domains, longest first so that no domain is
// rewritten through a shorter one that prefixes it
func orderDomains(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// RewriteDomains replaces every secure and insecure absolute occurrence of a vendor
// domain with the proxy origin. proxyOrigin includes its scheme, e.g. http://play.local:8080
func RewriteDomains(body string, domains []string, proxyOrigin string) string {
	ordered := orderDomains(domains)
	if len(ordered) == 0 {
		return body
	}
	pairs := make([]string, 0, len(ordered)*4)
	for _, d := range ordered {
		pairs = append(pairs, "https://"+d, proxyOrigin, "http://"+d, proxyOrigin)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// RewriteVariables rewrites `<identifier>.<property> = "<value>"` assignments so the
// value becomes the proxy origin
func RewriteVariables(body string, assocs []interfaces.VariableAssociation, proxyOrigin string) string {
	for _, a := range distinctPairs(assocs) {
		re := regexp.MustCompile(fmt.Sprintf(`%s\.%s\s*=\s*["'][^"']+["']`,
			regexp.QuoteMeta(a.Identifier), regexp.QuoteMeta(a.Property)))
		replacement := fmt.Sprintf(`%s.%s = "%s"`, a.Identifier, a.Property, proxyOrigin)
		body = re.ReplaceAllLiteralString(body, replacement)
	}
	return body
}

// distinctPairs collapses associations to unique identifier/property pairs in first-seen order
func distinctPairs(assocs []interfaces.VariableAssociation) []interfaces.VariableAssociation {
	seen := make(map[string]struct{}, len(assocs))
	out := make([]interfaces.VariableAssociation, 0, len(assocs))
	for _, a := range assocs {
		key := a.Identifier + "." + a.Property
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
