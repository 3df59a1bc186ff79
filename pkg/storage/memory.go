/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: memory.go
Description: In-memory Rule Store with the same ordering and dedup semantics as the
SQLite store. Used by tests and by dry runs.
*/

package storage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

type vendorData struct {
	observations []interfaces.Observation
	obsKeys      map[string]struct{}
	identifiers  []string
	variables    map[string][]byte
	domains      []string
	domainSet    map[string]struct{}
	metadata     map[string]string
}

// MemoryStore implements RuleStore in memory
type MemoryStore struct {
	mu      sync.RWMutex
	vendors map[string]*vendorData
	closed  bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vendors: make(map[string]*vendorData)}
}

func (m *MemoryStore) vendor(name string) *vendorData {
	v, ok := m.vendors[name]
	if !ok {
		v = &vendorData{
			obsKeys:   make(map[string]struct{}),
			variables: make(map[string][]byte),
			domainSet: make(map[string]struct{}),
			metadata:  make(map[string]string),
		}
		m.vendors[name] = v
	}
	return v
}

func (m *MemoryStore) check(op string) error {
	if m.closed {
		return interfaces.StoreError(op, errClosed)
	}
	return nil
}

// GetObservations returns the vendor's observations in insertion order
func (m *MemoryStore) GetObservations(_ context.Context, vendor string) ([]interfaces.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get observations"); err != nil {
		return nil, err
	}
	out := []interfaces.Observation{}
	if v, ok := m.vendors[vendor]; ok {
		out = append(out, v.observations...)
	}
	return out, nil
}

// AddObservation inserts obs unless an identical serialization is already stored
func (m *MemoryStore) AddObservation(_ context.Context, vendor string, obs interfaces.Observation) (bool, error) {
	obs = obs.Persisted()
	key, err := json.Marshal(obs)
	if err != nil {
		return false, interfaces.StoreError("encode observation", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("add observation"); err != nil {
		return false, err
	}
	v := m.vendor(vendor)
	if _, dup := v.obsKeys[string(key)]; dup {
		return false, nil
	}
	v.obsKeys[string(key)] = struct{}{}
	v.observations = append(v.observations, obs)
	return true, nil
}

// GetVariables returns every stored association grouped by identifier
func (m *MemoryStore) GetVariables(_ context.Context, vendor string) ([]interfaces.VariableAssociation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get variables"); err != nil {
		return nil, err
	}
	out := []interfaces.VariableAssociation{}
	v, ok := m.vendors[vendor]
	if !ok {
		return out, nil
	}
	for _, id := range v.identifiers {
		assocs, err := decodeAssociations(id, string(v.variables[id]))
		if err != nil {
			return nil, err
		}
		out = append(out, assocs...)
	}
	return out, nil
}

// SetVariables replaces the associations stored for identifier
func (m *MemoryStore) SetVariables(_ context.Context, vendor, identifier string, assocs []interfaces.VariableAssociation) error {
	if assocs == nil {
		assocs = []interfaces.VariableAssociation{}
	}
	payload, err := json.Marshal(assocs)
	if err != nil {
		return interfaces.StoreError("encode variables", err)
	}
	return m.setRawVariables(vendor, identifier, payload)
}

// setRawVariables stores an identifier's payload verbatim
func (m *MemoryStore) setRawVariables(vendor, identifier string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("set variables"); err != nil {
		return err
	}
	v := m.vendor(vendor)
	if _, ok := v.variables[identifier]; !ok {
		v.identifiers = append(v.identifiers, identifier)
	}
	v.variables[identifier] = payload
	return nil
}

// GetDomains returns the vendor's domains in discovery order
func (m *MemoryStore) GetDomains(_ context.Context, vendor string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get domains"); err != nil {
		return nil, err
	}
	out := []string{}
	if v, ok := m.vendors[vendor]; ok {
		out = append(out, v.domains...)
	}
	return out, nil
}

// AddDomain records domain for vendor
func (m *MemoryStore) AddDomain(_ context.Context, vendor, domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("add domain"); err != nil {
		return err
	}
	v := m.vendor(vendor)
	if _, ok := v.domainSet[domain]; ok {
		return nil
	}
	v.domainSet[domain] = struct{}{}
	v.domains = append(v.domains, domain)
	return nil
}

// GetMetadata returns a copy of the vendor's metadata
func (m *MemoryStore) GetMetadata(_ context.Context, vendor string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get metadata"); err != nil {
		return nil, err
	}
	out := map[string]string{}
	if v, ok := m.vendors[vendor]; ok {
		for k, val := range v.metadata {
			out[k] = val
		}
	}
	return out, nil
}

// SetMetadata sets one metadata key
func (m *MemoryStore) SetMetadata(_ context.Context, vendor, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("set metadata"); err != nil {
		return err
	}
	m.vendor(vendor).metadata[key] = value
	return nil
}

// Ping reports whether the store is open
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check("ping")
}

// Close marks the store closed; later calls fail with ErrRuleStoreUnavailable
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
