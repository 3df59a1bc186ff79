/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: storage.go
Description: Rule Store construction from configuration.
*/

package storage

import (
	"errors"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

var errClosed = errors.New("store is closed")

// MemoryPath selects the in-memory store
const MemoryPath = "memory"

// Open returns the Rule Store configured by path: "memory" for an in-memory store,
// anything else is a SQLite database file
func Open(path string) (interfaces.RuleStore, error) {
	if path == MemoryPath {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(path)
}

var (
	_ interfaces.RuleStore = (*SQLiteStore)(nil)
	_ interfaces.RuleStore = (*MemoryStore)(nil)
)
