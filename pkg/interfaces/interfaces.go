/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Shared types and collaborator interfaces for the Akaylee Mirror. Defines the
observation data model, synthesized rule types, and the Rule Store / Traffic Observer
contracts used across all packages to break import cycles.
*/

package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ResourceKind classifies a captured network exchange
type ResourceKind string

const (
	KindDocument    ResourceKind = "document"
	KindSubDocument ResourceKind = "subdocument"
	KindScript      ResourceKind = "script"
	KindXHR         ResourceKind = "xhr"
	KindFetch       ResourceKind = "fetch"
	KindWebSocket   ResourceKind = "websocket"
	KindStylesheet  ResourceKind = "stylesheet"
	KindImage       ResourceKind = "image"
	KindFont        ResourceKind = "font"
	KindMedia       ResourceKind = "media"
	KindOther       ResourceKind = "other"
)

// Observation is one captured network exchange.
// Only URL, Method, Hostname and ResourceKind are persisted; BodySample lives for the
// duration of a scan session.
type Observation struct {
	URL          string       `json:"url"`
	Method       string       `json:"method"`
	Hostname     string       `json:"host,omitempty"`
	ResourceKind ResourceKind `json:"resource_kind,omitempty"`
	BodySample   string       `json:"-"`
}

// Persisted returns the subset of the observation that forms the Rule Store dedup unit
func (o Observation) Persisted() Observation {
	return Observation{
		URL:          o.URL,
		Method:       o.Method,
		Hostname:     o.Hostname,
		ResourceKind: o.ResourceKind,
	}
}

// VariableAssociation records one `<identifier>.<property>` occurrence in script text
type VariableAssociation struct {
	Identifier  string `json:"identifier" yaml:"identifier"`
	Property    string `json:"property" yaml:"property"`
	MatchedText string `json:"fullMatch" yaml:"matched_text"`
}

// PathKind distinguishes exact routes from prefix routes
type PathKind string

const (
	PathStatic   PathKind = "static"
	PathWildcard PathKind = "wildcard"
)

// PathRule routes one generalized path to a backend host.
// Wildcard patterns end in "/*"; static patterns are the literal path.
type PathRule struct {
	Pattern    string   `json:"pattern" yaml:"pattern"`
	Kind       PathKind `json:"kind" yaml:"kind"`
	TargetHost string   `json:"target_host" yaml:"target_host"`
}

// Prefix returns the routed prefix of a wildcard pattern, or the full path of a static one
func (r PathRule) Prefix() string {
	if r.Kind == PathWildcard && len(r.Pattern) >= 2 && r.Pattern[len(r.Pattern)-2:] == "/*" {
		return r.Pattern[:len(r.Pattern)-1]
	}
	return r.Pattern
}

// HostMode selects how PathRule target hosts are chosen
type HostMode string

const (
	// HostModeSingle forwards every path rule to the dominant host
	HostModeSingle HostMode = "single"
	// HostModePerPath keeps an explicitly discovered host per observation
	HostModePerPath HostMode = "per-path"
)

// RuleSet is the complete, regenerable input to config emission.
// It is recomputed on every run and never persisted.
type RuleSet struct {
	Vendor               string                `json:"vendor" yaml:"vendor"`
	DominantHost         string                `json:"dominant_host" yaml:"dominant_host"`
	HostMode             HostMode              `json:"host_mode" yaml:"host_mode"`
	PathRules            []PathRule            `json:"path_rules" yaml:"path_rules"`
	VariableAssociations []VariableAssociation `json:"variable_associations" yaml:"variable_associations"`
	Domains              []string              `json:"domains" yaml:"domains"`
}

// TargetHosts returns the distinct rule target hosts, dominant host first
func (rs *RuleSet) TargetHosts() []string {
	seen := map[string]struct{}{}
	hosts := make([]string, 0, 1)
	add := func(h string) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	add(rs.DominantHost)
	for _, r := range rs.PathRules {
		add(r.TargetHost)
	}
	return hosts
}

// Fingerprint returns a stable digest of the RuleSet's canonical JSON encoding
func (rs *RuleSet) Fingerprint() (string, error) {
	data, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("failed to encode ruleset: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Capture is what a Traffic Observer delivers for one scan session
type Capture struct {
	ScanID       string        `json:"scan_id"`
	TargetURL    string        `json:"target_url"`
	FinalURL     string        `json:"final_url"`
	Observations []Observation `json:"observations"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// TrafficObserver captures live network exchanges for a landing URL.
// Observations are delivered in capture order.
type TrafficObserver interface {
	Observe(ctx context.Context, targetURL string) (*Capture, error)
	Name() string
}

// RuleStore persists vendor-scoped observations, variable associations and domains.
// Every call is atomic from the caller's point of view.
type RuleStore interface {
	GetObservations(ctx context.Context, vendor string) ([]Observation, error)
	// AddObservation is idempotent on exact serialized equality; it reports whether the
	// observation was new
	AddObservation(ctx context.Context, vendor string, obs Observation) (bool, error)

	GetVariables(ctx context.Context, vendor string) ([]VariableAssociation, error)
	// SetVariables replaces the stored associations of one identifier
	SetVariables(ctx context.Context, vendor, identifier string, assocs []VariableAssociation) error

	GetDomains(ctx context.Context, vendor string) ([]string, error)
	AddDomain(ctx context.Context, vendor, domain string) error

	GetMetadata(ctx context.Context, vendor string) (map[string]string, error)
	SetMetadata(ctx context.Context, vendor, key, value string) error

	Ping(ctx context.Context) error
	Close() error
}
