// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

// Package apikey handles the reference host's admin API key generation,
// hashing, and validation. Unlike the teacher's per-store key files, the
// coordinator has exactly one administrative principal, so there is a
// single global key file rather than one per named resource.
package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// KeyPrefix is prepended to all generated API keys.
	KeyPrefix = "statsagg_"
	// KeyFileName is the name of the global key file.
	KeyFileName = "keys.json"
)

var (
	ErrKeyNotFound    = errors.New("API key not found")
	ErrInvalidKey     = errors.New("invalid API key")
	ErrKeyFileCorrupt = errors.New("key file is corrupt")
)

// KeyEntry represents a stored API key (hash only).
type KeyEntry struct {
	ID        string    `json:"id"`         // Key identifier (first 8 chars of key after KeyPrefix)
	Hash      string    `json:"hash"`       // SHA-256 hash of full key
	CreatedAt time.Time `json:"created_at"` // When the key was created
	Note      string    `json:"note"`       // Optional note about the key
}

// KeyFile is the on-disk structure of the global keys.json file.
type KeyFile struct {
	Keys []KeyEntry `json:"keys"`
}

// Manager handles admin API key operations for the reference host.
type Manager struct {
	mu       sync.RWMutex
	path     string
	cache    *KeyFile
}

// NewManager creates a new API key manager backed by the key file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Generate creates a new admin API key.
// Returns the full key (only returned once) and the key entry.
func (m *Manager) Generate(note string) (string, *KeyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fullKey := KeyPrefix + uuid.New().String()
	hash := hashKey(fullKey)

	entry := &KeyEntry{
		ID:        fullKey[len(KeyPrefix) : len(KeyPrefix)+8],
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
		Note:      note,
	}

	keyFile, err := m.loadKeyFileLocked()
	if err != nil && !os.IsNotExist(err) {
		return "", nil, err
	}
	if keyFile == nil {
		keyFile = &KeyFile{Keys: []KeyEntry{}}
	}

	keyFile.Keys = append(keyFile.Keys, *entry)

	if err := m.saveKeyFileLocked(keyFile); err != nil {
		return "", nil, err
	}
	m.cache = keyFile

	return fullKey, entry, nil
}

// Validate checks if an API key is a currently-registered admin key.
// Returns the key entry if valid.
func (m *Manager) Validate(apiKey string) (*KeyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keyFile, err := m.getKeyFileLocked()
	if err != nil {
		return nil, err
	}

	hash := hashKey(apiKey)
	for _, entry := range keyFile.Keys {
		if entry.Hash == hash {
			return &entry, nil
		}
	}

	return nil, ErrInvalidKey
}

// Seed registers a caller-supplied key (e.g. one configured via
// environment variable) as valid, if it is not already present. Unlike
// Generate/Regenerate, the key value is chosen by the caller rather than
// generated here, so a deployment can pin its admin key via config/env
// instead of a one-time CLI key-generation step.
func (m *Manager) Seed(rawKey, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := hashKey(rawKey)

	keyFile, err := m.loadKeyFileLocked()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if keyFile == nil {
		keyFile = &KeyFile{Keys: []KeyEntry{}}
	}

	for _, entry := range keyFile.Keys {
		if entry.Hash == hash {
			m.cache = keyFile
			return nil
		}
	}

	id := strings.TrimPrefix(rawKey, KeyPrefix)
	if len(id) > 8 {
		id = id[:8]
	}
	keyFile.Keys = append(keyFile.Keys, KeyEntry{
		ID:        id,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
		Note:      note,
	})

	if err := m.saveKeyFileLocked(keyFile); err != nil {
		return err
	}
	m.cache = keyFile
	return nil
}

// Revoke removes an admin API key by its ID.
func (m *Manager) Revoke(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keyFile, err := m.loadKeyFileLocked()
	if err != nil {
		return err
	}

	found := false
	newKeys := make([]KeyEntry, 0, len(keyFile.Keys))
	for _, entry := range keyFile.Keys {
		if entry.ID != keyID {
			newKeys = append(newKeys, entry)
		} else {
			found = true
		}
	}

	if !found {
		return ErrKeyNotFound
	}

	keyFile.Keys = newKeys
	if err := m.saveKeyFileLocked(keyFile); err != nil {
		return err
	}
	m.cache = keyFile

	return nil
}

// List returns all admin key entries (hashes only, not full keys).
func (m *Manager) List() ([]KeyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keyFile, err := m.getKeyFileLocked()
	if err != nil {
		return nil, err
	}
	return keyFile.Keys, nil
}

// Regenerate revokes all existing keys and generates a new one.
// Returns the new full key.
func (m *Manager) Regenerate(note string) (string, *KeyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fullKey := KeyPrefix + uuid.New().String()
	hash := hashKey(fullKey)

	entry := &KeyEntry{
		ID:        fullKey[len(KeyPrefix) : len(KeyPrefix)+8],
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
		Note:      note,
	}

	keyFile := &KeyFile{Keys: []KeyEntry{*entry}}
	if err := m.saveKeyFileLocked(keyFile); err != nil {
		return "", nil, err
	}
	m.cache = keyFile

	return fullKey, entry, nil
}

// loadKeyFileLocked loads the key file from disk. Lock must be held.
func (m *Manager) loadKeyFileLocked() (*KeyFile, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}

	var keyFile KeyFile
	if err := json.Unmarshal(data, &keyFile); err != nil {
		return nil, ErrKeyFileCorrupt
	}

	return &keyFile, nil
}

// saveKeyFileLocked saves the key file to disk. Lock must be held.
func (m *Manager) saveKeyFileLocked(keyFile *KeyFile) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(keyFile, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.path, data, 0600) // Restricted permissions
}

// getKeyFileLocked gets the key file from cache or loads from disk. Lock must be held.
func (m *Manager) getKeyFileLocked() (*KeyFile, error) {
	if m.cache != nil {
		return m.cache, nil
	}

	keyFile, err := m.loadKeyFileLocked()
	if err != nil {
		return nil, err
	}

	m.cache = keyFile
	return keyFile, nil
}

// hashKey creates a SHA-256 hash of an API key.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// ValidateKeyFormat checks if a key has the correct format.
func ValidateKeyFormat(key string) bool {
	if len(key) < len(KeyPrefix)+36 { // prefix + UUID
		return false
	}
	return key[:len(KeyPrefix)] == KeyPrefix
}
