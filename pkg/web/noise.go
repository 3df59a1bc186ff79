/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: noise.go
Description: Noise filtering for Traffic Observers. Drops analytics and tag-manager hosts
matched by glob patterns, and resource kinds that never carry routing information.
*/

package web

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// NoiseFilter decides which captured exchanges are recorded
type NoiseFilter struct {
	domains []string
	kinds   map[interfaces.ResourceKind]struct{}
}

// NewNoiseFilter validates the domain globs and builds a filter
func NewNoiseFilter(domains, kinds []string) (*NoiseFilter, error) {
	f := &NoiseFilter{kinds: make(map[interfaces.ResourceKind]struct{}, len(kinds))}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if !doublestar.ValidatePattern(d) {
			return nil, fmt.Errorf("invalid ignored domain pattern: %q", d)
		}
		f.domains = append(f.domains, d)
	}
	for _, k := range kinds {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f.kinds[interfaces.ResourceKind(k)] = struct{}{}
		}
	}
	return f, nil
}

// IgnoreHost reports whether host matches an ignored domain pattern
func (f *NoiseFilter) IgnoreHost(host string) bool {
	host = strings.ToLower(host)
	for _, pattern := range f.domains {
		if ok, _ := doublestar.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

// IgnoreKind reports whether kind is never recorded
func (f *NoiseFilter) IgnoreKind(kind interfaces.ResourceKind) bool {
	_, ok := f.kinds[kind]
	return ok
}

// Allows reports whether obs survives both filters
func (f *NoiseFilter) Allows(obs interfaces.Observation) bool {
	if f.IgnoreKind(obs.ResourceKind) {
		return false
	}
	host := obs.Hostname
	if host == "" {
		host = urlHost(obs.URL)
	}
	return !f.IgnoreHost(host)
}

// FilterDomains drops ignored domains, keeping order
func (f *NoiseFilter) FilterDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if !f.IgnoreHost(d) {
			out = append(out, d)
		}
	}
	return out
}
