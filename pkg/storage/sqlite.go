/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: sqlite.go
Description: SQLite-backed Rule Store. Persists vendor-scoped observations, per-identifier
variable associations, discovered domains and scan metadata in a single pure-Go SQLite
database opened with WAL and a busy timeout.
*/

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (vendor, payload)
);
CREATE TABLE IF NOT EXISTS variables (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor     TEXT NOT NULL,
	identifier TEXT NOT NULL,
	payload    TEXT NOT NULL,
	UNIQUE (vendor, identifier)
);
CREATE TABLE IF NOT EXISTS domains (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor TEXT NOT NULL,
	domain TEXT NOT NULL,
	UNIQUE (vendor, domain)
);
CREATE TABLE IF NOT EXISTS metadata (
	vendor TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (vendor, key)
);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
}

const maxBusyRetries = 3

// SQLiteStore implements RuleStore on SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the store at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, interfaces.StoreError("mkdir", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, interfaces.StoreError("open", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, interfaces.StoreError("pragma", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, interfaces.StoreError("schema", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, interfaces.StoreError("ping", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database location
func (s *SQLiteStore) Path() string {
	return s.path
}

// GetObservations returns the vendor's observations in insertion order
func (s *SQLiteStore) GetObservations(ctx context.Context, vendor string) ([]interfaces.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM observations WHERE vendor = ? ORDER BY id`, vendor)
	if err != nil {
		return nil, interfaces.StoreError("get observations", err)
	}
	defer rows.Close()

	out := []interfaces.Observation{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, interfaces.StoreError("scan observation", err)
		}
		var obs interfaces.Observation
		if err := json.Unmarshal([]byte(payload), &obs); err != nil {
			return nil, interfaces.StoreError("decode observation", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, interfaces.StoreError("get observations", err)
	}
	return out, nil
}

// AddObservation inserts obs unless an identical serialization is already stored
func (s *SQLiteStore) AddObservation(ctx context.Context, vendor string, obs interfaces.Observation) (bool, error) {
	payload, err := json.Marshal(obs.Persisted())
	if err != nil {
		return false, interfaces.StoreError("encode observation", err)
	}
	var added bool
	err = s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO observations (vendor, payload, created_at) VALUES (?, ?, ?)`,
			vendor, string(payload), time.Now().Unix())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		added = n > 0
		return err
	})
	if err != nil {
		return false, interfaces.StoreError("add observation", err)
	}
	return added, nil
}

// GetVariables returns every stored association, grouped by identifier in the order
// identifiers were first stored
func (s *SQLiteStore) GetVariables(ctx context.Context, vendor string) ([]interfaces.VariableAssociation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier, payload FROM variables WHERE vendor = ? ORDER BY id`, vendor)
	if err != nil {
		return nil, interfaces.StoreError("get variables", err)
	}
	defer rows.Close()

	out := []interfaces.VariableAssociation{}
	for rows.Next() {
		var identifier, payload string
		if err := rows.Scan(&identifier, &payload); err != nil {
			return nil, interfaces.StoreError("scan variables", err)
		}
		assocs, err := decodeAssociations(identifier, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, assocs...)
	}
	if err := rows.Err(); err != nil {
		return nil, interfaces.StoreError("get variables", err)
	}
	return out, nil
}

// SetVariables replaces the associations stored for identifier
func (s *SQLiteStore) SetVariables(ctx context.Context, vendor, identifier string, assocs []interfaces.VariableAssociation) error {
	if assocs == nil {
		assocs = []interfaces.VariableAssociation{}
	}
	payload, err := json.Marshal(assocs)
	if err != nil {
		return interfaces.StoreError("encode variables", err)
	}
	err = s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO variables (vendor, identifier, payload) VALUES (?, ?, ?)
			ON CONFLICT (vendor, identifier) DO UPDATE SET payload = excluded.payload`,
			vendor, identifier, string(payload))
		return err
	})
	if err != nil {
		return interfaces.StoreError("set variables", err)
	}
	return nil
}

// GetDomains returns the vendor's discovered domains in discovery order
func (s *SQLiteStore) GetDomains(ctx context.Context, vendor string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain FROM domains WHERE vendor = ? ORDER BY id`, vendor)
	if err != nil {
		return nil, interfaces.StoreError("get domains", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, interfaces.StoreError("scan domain", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, interfaces.StoreError("get domains", err)
	}
	return out, nil
}

// AddDomain records domain for vendor; repeated domains are ignored
func (s *SQLiteStore) AddDomain(ctx context.Context, vendor, domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO domains (vendor, domain) VALUES (?, ?)`, vendor, domain)
		return err
	})
	if err != nil {
		return interfaces.StoreError("add domain", err)
	}
	return nil
}

// GetMetadata returns the vendor's metadata
func (s *SQLiteStore) GetMetadata(ctx context.Context, vendor string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM metadata WHERE vendor = ?`, vendor)
	if err != nil {
		return nil, interfaces.StoreError("get metadata", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, interfaces.StoreError("scan metadata", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, interfaces.StoreError("get metadata", err)
	}
	return out, nil
}

// SetMetadata sets one metadata key
func (s *SQLiteStore) SetMetadata(ctx context.Context, vendor, key, value string) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO metadata (vendor, key, value) VALUES (?, ?, ?)
			ON CONFLICT (vendor, key) DO UPDATE SET value = excluded.value`,
			vendor, key, value)
		return err
	})
	if err != nil {
		return interfaces.StoreError("set metadata", err)
	}
	return nil
}

// Ping checks the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return interfaces.StoreError("ping", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withRetry retries fn on SQLITE_BUSY with a short linear backoff
func (s *SQLiteStore) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := range maxBusyRetries {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// decodeAssociations parses one identifier's stored list. Corrupt data is fatal.
func decodeAssociations(identifier, payload string) ([]interfaces.VariableAssociation, error) {
	var assocs []interfaces.VariableAssociation
	if err := json.Unmarshal([]byte(payload), &assocs); err != nil {
		return nil, fmt.Errorf("%w: identifier %q: %v",
			interfaces.ErrMalformedAssociationData, identifier, err)
	}
	for i, a := range assocs {
		if a.Identifier == "" || a.Property == "" {
			return nil, fmt.Errorf("%w: identifier %q entry %d is incomplete",
				interfaces.ErrMalformedAssociationData, identifier, i)
		}
	}
	return assocs, nil
}
