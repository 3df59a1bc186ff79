/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: inference_test.go
Description: Tests for dominant host resolution, path generalization, variable
association extraction and domain discovery.
*/

package inference_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kleascm/akaylee-mirror/pkg/inference"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observations(urls ...string) []interfaces.Observation {
	out := make([]interfaces.Observation, 0, len(urls))
	for _, u := range urls {
		out = append(out, interfaces.Observation{URL: u, Method: "GET"})
	}
	return out
}

// TestResolveDominantHost tests host dominance and its tie-break
func TestResolveDominantHost(t *testing.T) {
	tests := []struct {
		name string
		urls []string
		want string
	}{
		{
			name: "majority wins",
			urls: []string{
				"https://a.example.com/1", "https://a.example.com/2", "https://a.example.com/3",
				"https://b.example.com/1", "https://b.example.com/2",
			},
			want: "a.example.com",
		},
		{
			name: "tie keeps first",
			urls: []string{"https://a.example.com/x", "https://b.example.com/y"},
			want: "a.example.com",
		},
		{
			name: "tie keeps the host that reached the maximum first",
			urls: []string{
				"https://a.example.com/1", "https://b.example.com/1",
				"https://b.example.com/2", "https://a.example.com/2",
			},
			want: "b.example.com",
		},
		{
			name: "hostnames are case-folded and ports ignored",
			urls: []string{"https://API.Example.com:8443/x", "https://api.example.com/y", "https://other.com/z"},
			want: "api.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, skipped, err := inference.ResolveDominantHost(observations(tt.urls...))
			require.NoError(t, err)
			assert.Empty(t, skipped)
			assert.Equal(t, tt.want, host)
		})
	}
}

// TestResolveDominantHostSkipsInvalid tests that invalid URLs are item-level failures
func TestResolveDominantHostSkipsInvalid(t *testing.T) {
	host, skipped, err := inference.ResolveDominantHost(observations(
		"not a url", "/relative/path", "https://vendor.example.com/api"))
	require.NoError(t, err)
	assert.Equal(t, "vendor.example.com", host)
	require.Len(t, skipped, 2)
	for _, s := range skipped {
		assert.True(t, errors.Is(s, interfaces.ErrInvalidURL))
	}
}

// TestResolveDominantHostEmpty tests the run-level failure
func TestResolveDominantHostEmpty(t *testing.T) {
	_, _, err := inference.ResolveDominantHost(nil)
	assert.ErrorIs(t, err, interfaces.ErrNoTargetDomain)

	_, skipped, err := inference.ResolveDominantHost(observations("::bad::"))
	assert.ErrorIs(t, err, interfaces.ErrNoTargetDomain)
	assert.Len(t, skipped, 1)
}

// TestHostCounterCounts tests first-encounter ordering of tallies
func TestHostCounterCounts(t *testing.T) {
	c := inference.NewHostCounter()
	for _, u := range []string{"https://b.com/1", "https://a.com/1", "https://b.com/2"} {
		require.NoError(t, c.Add(u))
	}
	assert.Equal(t, []inference.HostCount{{Host: "b.com", Count: 2}, {Host: "a.com", Count: 1}}, c.Counts())
	host, ok := c.Dominant()
	assert.True(t, ok)
	assert.Equal(t, "b.com", host)
}

// TestGeneralize tests path generalization
func TestGeneralize(t *testing.T) {
	c := inference.NewPathClassifier(interfaces.DefaultSegmentMinLength, interfaces.DefaultHexRunLength)

	tests := []struct {
		path    string
		pattern string
		kind    interfaces.PathKind
		reason  string
	}{
		{"/api/v1/9876543210/detail", "/api/v1/*", interfaces.PathWildcard, inference.ReasonDigits},
		{"/sessions/550e8400-e29b-41d4-a716-446655440000/state", "/sessions/*", interfaces.PathWildcard, inference.ReasonUUID},
		{"/assets/0123456789abcdef0123/app", "/assets/*", interfaces.PathWildcard, inference.ReasonHexRun},
		{"/api/v1/config", "/api/v1/config", interfaces.PathStatic, ""},
		{"/games/slot7/spin", "/games/slot7/spin", interfaces.PathStatic, ""},
		{"/round1234567/result", "/round1234567/*", interfaces.PathWildcard, inference.ReasonDigits},
		{"", "/", interfaces.PathStatic, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p := c.Generalize(tt.path)
			assert.Equal(t, tt.pattern, p.Pattern)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.reason, p.Reason)
		})
	}
}

// TestGeneralizeNeverRoot tests that a dynamic first segment never yields a root rule
func TestGeneralizeNeverRoot(t *testing.T) {
	c := inference.NewPathClassifier(0, 0)
	p := c.Generalize("/a1b2c3d4e5/x")
	assert.Equal(t, "/a1b2c3d4e5/*", p.Pattern)
	assert.NotEqual(t, "/*", p.Pattern)
	assert.Equal(t, 0, p.CutIndex)
}

// TestClassifySegment tests the segment thresholds
func TestClassifySegment(t *testing.T) {
	c := inference.NewPathClassifier(6, 16)

	dynamic, _ := c.ClassifySegment("abc123")
	assert.False(t, dynamic, "six characters is not longer than the minimum")

	dynamic, _ = c.ClassifySegment("abc1234")
	assert.True(t, dynamic)

	dynamic, _ = c.ClassifySegment("configuration")
	assert.False(t, dynamic, "no digit")

	dynamic, reason := c.ClassifySegment("deadbeefdeadbeef")
	assert.True(t, dynamic)
	assert.Equal(t, inference.ReasonHexRun, reason)

	// non-canonical uuid forms fall through to the other rules
	dynamic, reason = c.ClassifySegment("{550e8400-e29b-41d4-a716-446655440000}")
	assert.True(t, dynamic)
	assert.NotEqual(t, inference.ReasonUUID, reason)
}

// TestVariableExtract tests association extraction
func TestVariableExtract(t *testing.T) {
	e := inference.NewVariableExtractor(nil)

	groups := e.Extract(`var r={};r.server="https://api.vendor.com";r.api="x";zzzz.api=1;`)
	require.Len(t, groups, 1)
	assert.Equal(t, "r", groups[0].Identifier)
	require.Len(t, groups[0].Associations, 2)
	assert.Equal(t, interfaces.VariableAssociation{Identifier: "r", Property: "server", MatchedText: "r.server"},
		groups[0].Associations[0])
	assert.Equal(t, "api", groups[0].Associations[1].Property)
}

// TestVariableExtractBoundaries tests identifier length and property boundaries
func TestVariableExtractBoundaries(t *testing.T) {
	e := inference.NewVariableExtractor([]string{"server", "staticUrl", "api"})

	assert.Empty(t, e.Extract(`config.server = "x"`), "identifier longer than three characters")
	assert.Empty(t, e.Extract(`r.serverless = 1`), "property must end at a word boundary")
	assert.Empty(t, e.Extract(`r.host = 1`), "property outside the vocabulary")

	groups := e.Extract(`$a.staticUrl + _b.api + abc.server`)
	require.Len(t, groups, 3)
	assert.Equal(t, "$a", groups[0].Identifier)
	assert.Equal(t, "_b", groups[1].Identifier)
	assert.Equal(t, "abc", groups[2].Identifier)

	groups = e.Extract(`r.api$x.api`)
	require.Len(t, groups, 2)
	assert.Equal(t, "r", groups[0].Identifier)
	assert.Equal(t, "$x", groups[1].Identifier)
	assert.Equal(t, "$x.api", groups[1].Associations[0].MatchedText)

	assert.Empty(t, e.Extract(`abcd.api`), "suffix of a longer identifier")
}

// TestVariableExtractThreeCharacterIdentifier tests that identifiers of exactly three
// characters are registered
func TestVariableExtractThreeCharacterIdentifier(t *testing.T) {
	e := inference.NewVariableExtractor(nil)

	groups := e.Extract(`r.server = 'x'; zzz.api=1;`)
	require.Len(t, groups, 2)
	assert.Equal(t, "r", groups[0].Identifier)
	assert.Equal(t, "server", groups[0].Associations[0].Property)
	assert.Equal(t, "zzz", groups[1].Identifier)
	assert.Equal(t, []interfaces.VariableAssociation{{Identifier: "zzz", Property: "api", MatchedText: "zzz.api"}},
		groups[1].Associations)

	groups = e.Extract(`r.server = 'x'; zzzz.api=1;`)
	require.Len(t, groups, 1)
	assert.Equal(t, "r", groups[0].Identifier)
}

// TestVariableExtractKeepsDuplicates tests that repeated matches are retained in order
func TestVariableExtractKeepsDuplicates(t *testing.T) {
	e := inference.NewVariableExtractor(nil)
	groups := e.Extract(`n.api;t.server;n.api;`)
	require.Len(t, groups, 2)
	assert.Equal(t, "n", groups[0].Identifier)
	assert.Len(t, groups[0].Associations, 2)
	assert.Equal(t, "t", groups[1].Identifier)

	flat := inference.Flatten(groups)
	require.Len(t, flat, 3)
	assert.Equal(t, "t", flat[2].Identifier)
}

// TestExtractDomains tests discovery of absolute URL hosts
func TestExtractDomains(t *testing.T) {
	text := strings.Join([]string{
		`fetch("https://API.vendor.com/v1/x")`,
		`{"cdn":"https:\/\/cdn.vendor.com\/assets"}`,
		`new WebSocket("wss://push.vendor.com/ws")`,
		`"https://api.vendor.com/again"`,
		`"/relative/path" "mailto:me@example.com"`,
	}, "\n")

	assert.Equal(t, []string{"api.vendor.com", "cdn.vendor.com", "push.vendor.com"},
		inference.ExtractDomains(text))
	assert.Empty(t, inference.ExtractDomains("no urls here"))
}

// TestHostname tests hostname extraction
func TestHostname(t *testing.T) {
	host, err := inference.Hostname("https://Vendor.Example.com:443/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "vendor.example.com", host)

	_, err = inference.Hostname("/no/host")
	assert.ErrorIs(t, err, interfaces.ErrInvalidURL)
}
