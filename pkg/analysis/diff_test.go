/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: diff_test.go
Description: Tests for the traffic diff engine: bucket partitioning, static/dynamic URL
classification and location suggestions.
*/

package analysis_test

import (
	"testing"

	"github.com/kleascm/akaylee-mirror/pkg/analysis"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(urls ...string) []interfaces.Observation {
	out := make([]interfaces.Observation, 0, len(urls))
	for _, u := range urls {
		out = append(out, interfaces.Observation{URL: u, Method: "GET"})
	}
	return out
}

// TestDiffPartition tests that known-only URLs appear in no bucket
func TestDiffPartition(t *testing.T) {
	d := analysis.NewDiffEngine(interfaces.DefaultURLDigitRun, interfaces.DefaultHexRunLength)
	a := "https://vendor.example.com/api/config"
	b := "https://vendor.example.com/api/lobby"
	c := "https://vendor.example.com/api/history"

	diff := d.Diff(batch(a, b), batch(a, c))

	assert.Equal(t, []string{a}, diff.MatchedStatic)
	assert.Empty(t, diff.MatchedDynamic)
	assert.Equal(t, []analysis.NewURL{{URL: c, Static: true}}, diff.New)
	assert.NotContains(t, diff.MatchedStatic, b)
	for _, n := range diff.New {
		assert.NotEqual(t, b, n.URL)
	}
}

// TestDiffDynamic tests digit-run and hex-run classification of whole URLs
func TestDiffDynamic(t *testing.T) {
	d := analysis.NewDiffEngine(5, 16)
	dyn := "https://vendor.example.com/round/12345/result"
	hex := "https://vendor.example.com/t/0123456789abcdef/x"
	short := "https://vendor.example.com/v1234/x"

	diff := d.Diff(batch(dyn), batch(dyn, hex, short))

	assert.Equal(t, []string{dyn}, diff.MatchedDynamic)
	require.Len(t, diff.New, 2)
	assert.False(t, diff.New[0].Static)
	assert.True(t, diff.New[1].Static, "four digits stay static")
}

// TestDiffDeduplicatesBatch tests that repeated URLs are reported once
func TestDiffDeduplicatesBatch(t *testing.T) {
	d := analysis.NewDiffEngine(0, 0)
	u := "https://vendor.example.com/api/config"
	diff := d.Diff(nil, batch(u, u, u))
	assert.Len(t, diff.New, 1)
	assert.Equal(t, []string{"https://vendor.example.com/api/config"}, diff.Suggestions.LocationBlocks)
}

// TestDiffSuggestions tests location and dynamic prefix suggestions
func TestDiffSuggestions(t *testing.T) {
	d := analysis.NewDiffEngine(5, 16)
	diff := d.Diff(nil, batch(
		"https://vendor.example.com/api/v1/config/extra",
		"https://vendor.example.com/api/v1/other",
		"https://vendor.example.com/api/rounds/987654/result",
		"https://vendor.example.com/987654/result",
		"not a url",
	))

	assert.Equal(t, []string{"https://vendor.example.com/api/v1"}, diff.Suggestions.LocationBlocks)
	assert.Equal(t, []string{"/api/rounds/", "/987654/"}, diff.Suggestions.DynamicPrefixes)
	assert.Equal(t, []string{"not a url"}, diff.Skipped)
}

// TestBasePath tests origin plus two segments
func TestBasePath(t *testing.T) {
	d := analysis.NewDiffEngine(0, 0)

	base, err := d.BasePath("https://vendor.example.com/a/b/c/d?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://vendor.example.com/a/b", base)

	base, err = d.BasePath("https://vendor.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://vendor.example.com/", base)

	_, err = d.BasePath("/relative")
	assert.ErrorIs(t, err, interfaces.ErrInvalidURL)
}

// TestDynamicBasePath tests the prefix up to the first dynamic segment
func TestDynamicBasePath(t *testing.T) {
	d := analysis.NewDiffEngine(5, 16)

	p, err := d.DynamicBasePath("https://vendor.example.com/api/user/1234567/profile")
	require.NoError(t, err)
	assert.Equal(t, "/api/user/", p)

	// no dynamic segment yields the full path
	p, err = d.DynamicBasePath("https://vendor.example.com/static/path")
	require.NoError(t, err)
	assert.Equal(t, "/static/path", p)
}
