// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package secretstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"   // load the sqlite WASM binary
	_ "github.com/ncruces/go-sqlite3/vfs/xts" // register the "xts" encrypting VFS

	"github.com/fido-device-onboard/go-fdo-blobstore/internal/cryptoprim"
)

// SQLite is a Store backed by a single-file SQLite database, run inside the
// WASM runtime bundled with ncruces/go-sqlite3 (no cgo). When opened with a
// non-empty password it runs under the "xts" encrypting VFS, the same way
// the teacher's own sqlite.Open(filename, password) wires up AES-XTS
// encryption-at-rest for its owner/rendezvous database.
//
// This exists alongside File to show the Store interface is swappable
// without any change to the blob store or nonce manager, and to give the
// SQLite/WASM/x-crypto dependency chain a concrete home in this module.
type SQLite struct {
	db *sql.DB

	mu sync.Mutex
}

var _ Store = (*SQLite)(nil)

// OpenSQLite creates or opens a SQLite-backed Store at filename. If password
// is non-empty, the database is protected at rest by the "xts" VFS.
func OpenSQLite(filename, password string) (*SQLite, error) {
	query := "?_pragma=busy_timeout(5000)"
	if password != "" {
		query += fmt.Sprintf("&vfs=xts&_pragma=textkey(%q)", password)
	}
	connector, err := (&driver.SQLite{}).OpenConnector("file:" + filepath.Clean(filename) + query)
	if err != nil {
		return nil, fmt.Errorf("secretstore: opening sqlite connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1) // single writer, avoids WASM VFS lock contention

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS secrets (
			name TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nonce_slot (
			id INTEGER PRIMARY KEY CHECK (id = 0),
			base BLOB NOT NULL,
			counter BLOB NOT NULL,
			exhausted INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("secretstore: initializing schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) loadOrStoreSecret(name string, size int) (Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh, err := cryptoprim.Random(size)
	if err != nil {
		return Secret{}, err
	}
	defer func() {
		for i := range fresh {
			fresh[i] = 0
		}
	}()

	if _, err := s.db.Exec(
		`INSERT INTO secrets (name, value) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, fresh,
	); err != nil {
		return Secret{}, fmt.Errorf("secretstore: storing %s: %w", name, err)
	}

	var value []byte
	if err := s.db.QueryRow(`SELECT value FROM secrets WHERE name = ?`, name).Scan(&value); err != nil {
		return Secret{}, fmt.Errorf("secretstore: loading %s: %w", name, err)
	}
	defer func() {
		for i := range value {
			value[i] = 0
		}
	}()
	return NewSecret(value), nil
}

// SealingKey implements Store.
func (s *SQLite) SealingKey() (Secret, error) { return s.loadOrStoreSecret("sealing-key", 32) }

// MACKey implements Store.
func (s *SQLite) MACKey() (Secret, error) { return s.loadOrStoreSecret("mac-key", 32) }

// ReadNonceSlot implements Store.
func (s *SQLite) ReadNonceSlot() (Slot, error) {
	var slot Slot
	var base, counter []byte
	var exhausted int

	err := s.db.QueryRow(`SELECT base, counter, exhausted FROM nonce_slot WHERE id = 0`).
		Scan(&base, &counter, &exhausted)
	if err == sql.ErrNoRows {
		return Slot{}, nil
	}
	if err != nil {
		return Slot{}, fmt.Errorf("secretstore: reading nonce slot: %w", err)
	}
	if len(base) != NonceSize || len(counter) != NonceSize {
		return Slot{}, fmt.Errorf("secretstore: stored nonce slot has invalid length")
	}
	copy(slot.Base[:], base)
	copy(slot.Counter[:], counter)
	slot.Exhausted = exhausted != 0
	slot.Initialized = true
	return slot, nil
}

// WriteNonceSlot implements Store.
func (s *SQLite) WriteNonceSlot(slot Slot) error {
	exhausted := 0
	if slot.Exhausted {
		exhausted = 1
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO nonce_slot (id, base, counter, exhausted) VALUES (0, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET base = excluded.base, counter = excluded.counter, exhausted = excluded.exhausted
	`, slot.Base[:], slot.Counter[:], exhausted)
	if err != nil {
		return fmt.Errorf("secretstore: persisting nonce slot: %w", err)
	}
	return nil
}
