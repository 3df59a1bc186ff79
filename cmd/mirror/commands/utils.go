/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the Akaylee Mirror commands. Provides configuration
loading, the typed configuration snapshot, logging setup and synthesizer wiring used
across all command implementations.
*/

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kleascm/akaylee-mirror/pkg/core"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/kleascm/akaylee-mirror/pkg/storage"
	"github.com/kleascm/akaylee-mirror/pkg/web"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MIRROR_STORE_PATH
const EnvPrefix = "MIRROR"

// SetDefaults registers the default value of every configuration key
func SetDefaults(v *viper.Viper) {
	d := interfaces.DefaultConfig()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", string(logging.LogFormatCustom))
	v.SetDefault("log_dir", "")
	v.SetDefault("store.path", d.StorePath)
	v.SetDefault("output.dir", d.OutputDir)
	v.SetDefault("host_mode", string(d.HostMode))
	v.SetDefault("proxy.public_host", d.Proxy.PublicHost)
	v.SetDefault("proxy.scheme", d.Proxy.Scheme)
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.resolvers", d.Proxy.Resolvers)
	v.SetDefault("thresholds.segment_min_length", d.Thresholds.SegmentMinLength)
	v.SetDefault("thresholds.url_digit_run", d.Thresholds.URLDigitRun)
	v.SetDefault("thresholds.hex_run", d.Thresholds.HexRun)
	v.SetDefault("variables.properties", d.Properties)
	v.SetDefault("observer.mode", d.Observer.Mode)
	v.SetDefault("observer.headless", d.Observer.Headless)
	v.SetDefault("observer.handshake_wait", d.Observer.HandshakeWait)
	v.SetDefault("observer.navigation_timeout", d.Observer.NavigationTimeout)
	v.SetDefault("observer.ignored_domains", d.Observer.IgnoredDomains)
	v.SetDefault("observer.ignored_kinds", d.Observer.IgnoredKinds)
	v.SetDefault("observer.max_body_bytes", d.Observer.MaxBodyBytes)
	v.SetDefault("observer.user_agent", d.Observer.UserAgent)
	v.SetDefault("observer.http_concurrency", d.Observer.HTTPConcurrency)
	v.SetDefault("observer.http_retries", d.Observer.HTTPRetries)
}

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	SetDefaults(viper.GetViper())

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	BindEnv(viper.GetViper())
	return nil
}

// BindEnv enables MIRROR_* environment overrides on v
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// BuildConfig snapshots v into a validated MirrorConfig
func BuildConfig(v *viper.Viper) (*interfaces.MirrorConfig, error) {
	config := &interfaces.MirrorConfig{
		StorePath:  v.GetString("store.path"),
		OutputDir:  v.GetString("output.dir"),
		HostMode:   interfaces.HostMode(v.GetString("host_mode")),
		Properties: v.GetStringSlice("variables.properties"),
		Thresholds: interfaces.ThresholdConfig{
			SegmentMinLength: v.GetInt("thresholds.segment_min_length"),
			URLDigitRun:      v.GetInt("thresholds.url_digit_run"),
			HexRun:           v.GetInt("thresholds.hex_run"),
		},
		Observer: interfaces.ObserverConfig{
			Mode:              v.GetString("observer.mode"),
			Headless:          v.GetBool("observer.headless"),
			HandshakeWait:     v.GetDuration("observer.handshake_wait"),
			NavigationTimeout: v.GetDuration("observer.navigation_timeout"),
			IgnoredDomains:    v.GetStringSlice("observer.ignored_domains"),
			IgnoredKinds:      v.GetStringSlice("observer.ignored_kinds"),
			MaxBodyBytes:      v.GetInt("observer.max_body_bytes"),
			UserAgent:         v.GetString("observer.user_agent"),
			HTTPConcurrency:   v.GetInt("observer.http_concurrency"),
			HTTPRetries:       v.GetInt("observer.http_retries"),
		},
		Proxy: interfaces.ProxyConfig{
			PublicHost: v.GetString("proxy.public_host"),
			Scheme:     v.GetString("proxy.scheme"),
			Listen:     v.GetInt("proxy.listen"),
			Resolvers:  v.GetStringSlice("proxy.resolvers"),
		},
		LogLevel: v.GetString("log_level"),
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// SetupLogging configures the logging system
func SetupLogging() (*logging.Logger, error) {
	config := logging.DefaultLoggerConfig()
	config.Level = logging.LogLevel(viper.GetString("log_level"))
	config.Format = logging.LogFormat(viper.GetString("log_format"))
	config.OutputDir = viper.GetString("log_dir")
	logger, err := logging.NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}

// session bundles what every command needs
type session struct {
	config      *interfaces.MirrorConfig
	logger      *logging.Logger
	synthesizer *core.Synthesizer
	store       interfaces.RuleStore
}

func (s *session) Close() {
	if s.store != nil {
		s.store.Close()
	}
	if s.logger != nil {
		s.logger.Close()
	}
}

// openSession loads configuration, logging and the Rule Store. An observer is created
// only when withObserver is set.
func openSession(withObserver bool) (*session, error) {
	if err := LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := SetupLogging()
	if err != nil {
		return nil, err
	}
	config, err := BuildConfig(viper.GetViper())
	if err != nil {
		logger.Close()
		return nil, err
	}

	store, err := storage.Open(config.StorePath)
	if err != nil {
		logger.Close()
		return nil, err
	}

	var observer interfaces.TrafficObserver
	if withObserver {
		observer, err = web.NewObserver(&config.Observer, logger.GetLogger())
		if err != nil {
			store.Close()
			logger.Close()
			return nil, err
		}
	}

	synth, err := core.NewSynthesizer(config, store, observer, logger)
	if err != nil {
		store.Close()
		logger.Close()
		return nil, err
	}
	return &session{config: config, logger: logger, synthesizer: synth, store: store}, nil
}

// signalContext is cancelled on interrupt or termination
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
