/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Typed configuration snapshot for the Akaylee Mirror. Built from viper by the
CLI and passed explicitly to the synthesis engine, observers, store and emitter.
*/

package interfaces

import (
	"fmt"
	"time"
)

// Classification thresholds. The path classifier and the diff engine use different
// digit thresholds.
const (
	// DefaultSegmentMinLength: a path segment containing a digit is dynamic when longer than this
	DefaultSegmentMinLength = 6
	// DefaultURLDigitRun: a URL containing this many consecutive digits is dynamic
	DefaultURLDigitRun = 5
	// DefaultHexRunLength: a run of this many hex characters marks a value as dynamic
	DefaultHexRunLength = 16
)

// DefaultProperties is the recognized domain-bearing property vocabulary
var DefaultProperties = []string{"server", "staticUrl", "api"}

// ThresholdConfig holds the static/dynamic classification thresholds
type ThresholdConfig struct {
	SegmentMinLength int `mapstructure:"segment_min_length"`
	URLDigitRun      int `mapstructure:"url_digit_run"`
	HexRun           int `mapstructure:"hex_run"`
}

// ObserverConfig configures the Traffic Observer collaborators
type ObserverConfig struct {
	Mode              string        `mapstructure:"mode"` // browser | http
	Headless          bool          `mapstructure:"headless"`
	HandshakeWait     time.Duration `mapstructure:"handshake_wait"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	IgnoredDomains    []string      `mapstructure:"ignored_domains"`
	IgnoredKinds      []string      `mapstructure:"ignored_kinds"`
	MaxBodyBytes      int           `mapstructure:"max_body_bytes"`
	UserAgent         string        `mapstructure:"user_agent"`
	HTTPConcurrency   int           `mapstructure:"http_concurrency"`
	HTTPRetries       int           `mapstructure:"http_retries"`
}

// ProxyConfig describes the externally visible proxy
type ProxyConfig struct {
	PublicHost string `mapstructure:"public_host"`
	// Scheme every rewritten vendor URL collapses to
	Scheme    string   `mapstructure:"scheme"`
	Listen    int      `mapstructure:"listen"`
	Resolvers []string `mapstructure:"resolvers"`
}

// MirrorConfig is the full configuration for one CLI invocation
type MirrorConfig struct {
	StorePath  string          `mapstructure:"store_path"`
	OutputDir  string          `mapstructure:"output_dir"`
	HostMode   HostMode        `mapstructure:"host_mode"`
	Properties []string        `mapstructure:"properties"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Observer   ObserverConfig  `mapstructure:"observer"`
	Proxy      ProxyConfig     `mapstructure:"proxy"`
	LogLevel   string          `mapstructure:"log_level"`
}

// DefaultConfig returns the default scanner configuration
func DefaultConfig() *MirrorConfig {
	return &MirrorConfig{
		StorePath:  "./data/mirror.db",
		OutputDir:  "./output",
		HostMode:   HostModeSingle,
		Properties: append([]string(nil), DefaultProperties...),
		Thresholds: ThresholdConfig{
			SegmentMinLength: DefaultSegmentMinLength,
			URLDigitRun:      DefaultURLDigitRun,
			HexRun:           DefaultHexRunLength,
		},
		Observer: ObserverConfig{
			Mode:              "browser",
			Headless:          true,
			HandshakeWait:     60 * time.Second,
			NavigationTimeout: 60 * time.Second,
			IgnoredDomains: []string{
				"*google-analytics.com",
				"*googletagmanager.com",
				"*gstatic.com",
				"*doubleclick.net",
			},
			IgnoredKinds:    []string{"font", "image", "media", "stylesheet"},
			MaxBodyBytes:    4 << 20,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			HTTPConcurrency: 4,
			HTTPRetries:     2,
		},
		Proxy: ProxyConfig{
			PublicHost: "localhost:8080",
			Scheme:     "http",
			Listen:     8080,
			Resolvers:  []string{"8.8.8.8", "1.1.1.1"},
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for invalid or missing values
func (c *MirrorConfig) Validate() error {
	switch c.HostMode {
	case HostModeSingle, HostModePerPath:
	default:
		return fmt.Errorf("unsupported host mode: %q", c.HostMode)
	}
	if c.Thresholds.SegmentMinLength <= 0 {
		return fmt.Errorf("thresholds.segment_min_length must be positive")
	}
	if c.Thresholds.URLDigitRun <= 0 {
		return fmt.Errorf("thresholds.url_digit_run must be positive")
	}
	if c.Thresholds.HexRun <= 0 {
		return fmt.Errorf("thresholds.hex_run must be positive")
	}
	if len(c.Properties) == 0 {
		return fmt.Errorf("variables.properties must not be empty")
	}
	if c.Proxy.PublicHost == "" {
		return fmt.Errorf("proxy.public_host must not be empty")
	}
	if c.Proxy.Scheme != "http" && c.Proxy.Scheme != "https" {
		return fmt.Errorf("proxy.scheme must be http or https: %q", c.Proxy.Scheme)
	}
	if c.Proxy.Listen <= 0 || c.Proxy.Listen > 65535 {
		return fmt.Errorf("proxy.listen out of range: %d", c.Proxy.Listen)
	}
	switch c.Observer.Mode {
	case "browser", "http":
	default:
		return fmt.Errorf("unsupported observer mode: %q", c.Observer.Mode)
	}
	if c.StorePath == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	return nil
}
