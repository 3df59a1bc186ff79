/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: emitter.go
Description: Configuration emitter for the Akaylee Mirror. Renders a RuleSet into an
nginx/OpenResty configuration and writes it atomically to output/<vendor>/nginx.conf.
*/

package emitter

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/sirupsen/logrus"
)

// ArtifactName is the file written under output/<vendor>/
const ArtifactName = "nginx.conf"

// AssetExtensions are served by the asset and script locations instead of path rules
var AssetExtensions = []string{
	"js", "png", "jpg", "jpeg", "gif", "webp", "woff", "woff2", "ttf",
	"svg", "mp3", "ogg", "wav", "json", "ico",
}

var (
	hostPattern   = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)
	vendorPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	nginxTmpl     = template.Must(template.New("nginx").Funcs(template.FuncMap{
		"textualTypes": func() []string { return textualTypes },
		"luaQuote":     QuoteLua,
	}).Parse(filterTemplates + nginxTemplate))
)

// Options describe the proxy the configuration is emitted for
type Options struct {
	ProxyHost string // externally visible host[:port]
	Scheme    string
	Listen    int
	Resolvers []string
}

// OptionsFromConfig derives emitter options from the mirror configuration
func OptionsFromConfig(config *interfaces.MirrorConfig) Options {
	return Options{
		ProxyHost: config.Proxy.PublicHost,
		Scheme:    config.Proxy.Scheme,
		Listen:    config.Proxy.Listen,
		Resolvers: config.Proxy.Resolvers,
	}
}

// Origin returns the proxy origin every vendor URL is rewritten to
func (o Options) Origin() string {
	scheme := o.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + o.ProxyHost
}

type upstreamView struct {
	Name string
	Host string
}

type locationView struct {
	Kind     interfaces.PathKind
	Pattern  string
	Modifier string
	Path     string
	Upstream string
	Host     string
}

type luaRule struct {
	Pattern     string
	Replacement string
}

type configView struct {
	Vendor        string
	DominantHost  string
	HostMode      interfaces.HostMode
	Fingerprint   string
	Upstreams     []upstreamView
	Dominant      upstreamView
	Locations     []locationView
	Listen        int
	ServerName    string
	Resolvers     string
	ScriptOrigin  string
	ScriptHost    string
	DomainRules   []luaRule
	VariableRules []luaRule
	AssetPattern  string
	GuardScript   string
}

// Render produces the configuration text for rs. The output depends only on rs and opts.
func Render(rs *interfaces.RuleSet, opts Options) ([]byte, error) {
	if rs == nil {
		return nil, fmt.Errorf("nil ruleset")
	}
	if !vendorPattern.MatchString(rs.Vendor) {
		return nil, fmt.Errorf("invalid vendor name: %q", rs.Vendor)
	}
	if rs.DominantHost == "" {
		return nil, interfaces.ErrNoTargetDomain
	}
	if opts.ProxyHost == "" {
		return nil, fmt.Errorf("proxy host must not be empty")
	}
	if opts.Listen <= 0 {
		opts.Listen = 8080
	}
	if len(opts.Resolvers) == 0 {
		opts.Resolvers = []string{"8.8.8.8", "1.1.1.1"}
	}

	view, err := buildView(rs, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := nginxTmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render configuration: %w", err)
	}
	return buf.Bytes(), nil
}

func buildView(rs *interfaces.RuleSet, opts Options) (*configView, error) {
	hosts := rs.TargetHosts()
	upstreams := make([]upstreamView, 0, len(hosts))
	names := make(map[string]string, len(hosts))
	for i, host := range hosts {
		if !hostPattern.MatchString(host) {
			return nil, fmt.Errorf("invalid target host: %q", host)
		}
		name := "vendor_backend"
		if i > 0 {
			name = fmt.Sprintf("vendor_backend_%d", i)
		}
		names[host] = name
		upstreams = append(upstreams, upstreamView{Name: name, Host: host})
	}

	locations := make([]locationView, 0, len(rs.PathRules))
	for _, rule := range rs.PathRules {
		if !strings.HasPrefix(rule.Pattern, "/") {
			return nil, fmt.Errorf("path rule %q is not absolute", rule.Pattern)
		}
		loc := locationView{
			Kind:     rule.Kind,
			Pattern:  rule.Pattern,
			Upstream: names[rule.TargetHost],
			Host:     rule.TargetHost,
		}
		if loc.Upstream == "" {
			return nil, fmt.Errorf("path rule %q has no known target host", rule.Pattern)
		}
		switch rule.Kind {
		case interfaces.PathWildcard:
			// plain prefix so the script location still wins for .js under the prefix
			loc.Path = QuoteNginx(rule.Prefix())
		case interfaces.PathStatic:
			loc.Modifier = "="
			loc.Path = QuoteNginx(rule.Pattern)
		default:
			return nil, fmt.Errorf("unknown path kind %q for %s", rule.Kind, rule.Pattern)
		}
		locations = append(locations, loc)
	}

	fingerprint, err := rs.Fingerprint()
	if err != nil {
		return nil, err
	}

	guard, err := RenderGuardScript(GuardOptions{
		ProxyHost: opts.ProxyHost,
		Scheme:    opts.Scheme,
		Domains:   rs.Domains,
	})
	if err != nil {
		return nil, err
	}

	origin := EscapeReplacement(opts.Origin())
	var domainRules []luaRule
	for _, d := range orderDomains(rs.Domains) {
		for _, scheme := range []string{"https://", "http://"} {
			domainRules = append(domainRules, luaRule{
				Pattern:     QuoteLua(scheme + EscapePattern(d)),
				Replacement: QuoteLua(origin),
			})
		}
	}

	var variableRules []luaRule
	for _, a := range distinctPairs(rs.VariableAssociations) {
		variableRules = append(variableRules, luaRule{
			Pattern: QuoteLua(EscapePattern(a.Identifier) + "%." + EscapePattern(a.Property) +
				`%s*=%s*["'][^"']+["']`),
			Replacement: QuoteLua(EscapeReplacement(
				fmt.Sprintf(`%s.%s = "%s"`, a.Identifier, a.Property, opts.Origin()))),
		})
	}

	assets := make([]string, 0, len(AssetExtensions))
	for _, ext := range AssetExtensions {
		if ext != "js" {
			assets = append(assets, ext)
		}
	}

	return &configView{
		Vendor:        rs.Vendor,
		DominantHost:  rs.DominantHost,
		HostMode:      rs.HostMode,
		Fingerprint:   fingerprint,
		Upstreams:     upstreams,
		Dominant:      upstreams[0],
		Locations:     locations,
		Listen:        opts.Listen,
		ServerName:    serverName(opts.ProxyHost),
		Resolvers:     strings.Join(opts.Resolvers, " "),
		ScriptOrigin:  QuoteLua("https://" + rs.DominantHost),
		ScriptHost:    QuoteLua(rs.DominantHost),
		DomainRules:   domainRules,
		VariableRules: variableRules,
		AssetPattern:  strings.Join(assets, "|"),
		GuardScript:   luaLongOpen + "<script>" + guard + "</script>" + luaLongClose,
	}, nil
}

func serverName(proxyHost string) string {
	if host, _, err := net.SplitHostPort(proxyHost); err == nil {
		return host
	}
	return proxyHost
}

// WriteArtifact writes content to <outputDir>/<vendor>/nginx.conf through a temporary
// file and a rename, so a failed write never leaves a partial artifact behind
func WriteArtifact(outputDir, vendor string, content []byte) (string, error) {
	if !vendorPattern.MatchString(vendor) || vendor == "." || vendor == ".." {
		return "", fmt.Errorf("invalid vendor name: %q", vendor)
	}
	dir := filepath.Join(outputDir, vendor)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".nginx-*.conf")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary artifact: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to set artifact permissions: %w", err)
	}

	target := filepath.Join(dir, ArtifactName)
	if err := os.Rename(tmp.Name(), target); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return target, nil
}

// Generator renders and writes configurations into one output directory
type Generator struct {
	outputDir string
	options   Options
	logger    *logrus.Logger
}

// NewGenerator creates a generator
func NewGenerator(outputDir string, opts Options, logger *logrus.Logger) *Generator {
	return &Generator{
		outputDir: outputDir,
		options:   opts,
		logger:    logging.OrDiscard(logger),
	}
}

// Generate renders rs and writes it; nothing is written when rendering fails
func (g *Generator) Generate(rs *interfaces.RuleSet) (string, error) {
	content, err := Render(rs, g.options)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	path, err := WriteArtifact(g.outputDir, rs.Vendor, content)
	if err != nil {
		return "", err
	}
	g.logger.WithFields(logrus.Fields{
		logging.FieldStage: "emit",
		"vendor":           rs.Vendor,
		"artifact":         path,
		"bytes":            len(content),
	}).Debug("Configuration artifact written")
	return path, nil
}
