/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands_test.go
Description: Tests for configuration snapshots, URL list parsing, RuleSet output and the
self-check helpers.
*/

package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConfigDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	config, err := BuildConfig(v)
	require.NoError(t, err)
	assert.Equal(t, interfaces.DefaultConfig(), config)
}

func TestBuildConfigOverrides(t *testing.T) {
	t.Setenv("MIRROR_PROXY_PUBLIC_HOST", "play.local:9090")
	t.Setenv("MIRROR_OBSERVER_HANDSHAKE_WAIT", "5s")

	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	v.Set("host_mode", "per-path")
	v.Set("variables.properties", []string{"server", "wsUrl"})

	config, err := BuildConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "play.local:9090", config.Proxy.PublicHost)
	assert.Equal(t, 5*time.Second, config.Observer.HandshakeWait)
	assert.Equal(t, interfaces.HostModePerPath, config.HostMode)
	assert.Equal(t, []string{"server", "wsUrl"}, config.Properties)
}

func TestBuildConfigRejectsInvalid(t *testing.T) {
	tests := map[string]interface{}{
		"host_mode":                     "round-robin",
		"proxy.scheme":                  "ftp",
		"proxy.listen":                  70000,
		"observer.mode":                 "telepathy",
		"thresholds.segment_min_length": 0,
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(key, value)
			_, err := BuildConfig(v)
			assert.Error(t, err)
		})
	}
}

func TestReadURLList(t *testing.T) {
	input := `
# captured from the lobby
https://api.acme.com/api/v1/config

   https://api.acme.com/api/v1/9876543210/detail
#https://ignored.example.com/
`
	urls, err := ReadURLList(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://api.acme.com/api/v1/config",
		"https://api.acme.com/api/v1/9876543210/detail",
	}, urls)

	urls, err = ReadURLList(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func sampleRuleSet() *interfaces.RuleSet {
	return &interfaces.RuleSet{
		Vendor:       "acme",
		DominantHost: "api.acme.com",
		HostMode:     interfaces.HostModeSingle,
		PathRules: []interfaces.PathRule{
			{Pattern: "/api/v1/*", Kind: interfaces.PathWildcard, TargetHost: "api.acme.com"},
		},
		VariableAssociations: []interfaces.VariableAssociation{
			{Identifier: "r", Property: "server", MatchedText: "r.server"},
		},
		Domains: []string{"api.acme.com"},
	}
}

func TestWriteRuleSet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRuleSet(&buf, sampleRuleSet(), "yaml"))
	out := buf.String()
	assert.Contains(t, out, "vendor: acme\n")
	assert.Contains(t, out, "dominant_host: api.acme.com\n")
	assert.Contains(t, out, "matched_text: r.server")

	buf.Reset()
	require.NoError(t, WriteRuleSet(&buf, sampleRuleSet(), "json"))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "api.acme.com", decoded["dominant_host"])
	assert.Contains(t, buf.String(), `"fullMatch": "r.server"`)

	assert.Error(t, WriteRuleSet(&buf, sampleRuleSet(), "xml"))
}

func TestSelfCheckHelpers(t *testing.T) {
	assert.NoError(t, checkOutputDir(t.TempDir()))

	config := interfaces.DefaultConfig()
	assert.NoError(t, checkGuard(config))

	config.StorePath = "memory"
	assert.NoError(t, checkStore(config))

	config.Observer.Mode = "http"
	assert.NoError(t, checkBrowser(config))
}
