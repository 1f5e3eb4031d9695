// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kvstore provides the durable key-value substrate for personachat.
//
// Each namespace is a whole JSON blob: callers read the full blob, mutate
// it in memory, and write the full blob back. There is no field-level
// update primitive - that is a deliberate property of the storage model
// (single active writer), not a missing feature.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/personachat/internal/util"
)

// ErrNotFound is returned when a namespace has never been written.
// Use errors.Is(err, ErrNotFound) to distinguish absence from failure.
var ErrNotFound = errors.New("namespace not found")

// Store is the substrate interface. Implementations must make Write
// all-or-nothing: a failed write leaves the previous blob intact.
type Store interface {
	// Read returns the full blob for a namespace, or ErrNotFound if the
	// namespace has never been written.
	Read(namespace string) ([]byte, error)

	// Write replaces the full blob for a namespace.
	Write(namespace string, data []byte) error

	// Delete removes a namespace. Deleting an absent namespace is a no-op.
	Delete(namespace string) error

	// Clear removes every namespace.
	Clear() error
}

// =============================================================================
// FILE STORE
// =============================================================================

// fileExt is the extension for namespace blob files.
const fileExt = ".json"

// FileStore persists each namespace as one JSON file in a base directory.
// Writes go through an atomic temp-file + fsync + rename, so a crash leaves
// either the old blob or the new complete blob.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file-backed store rooted at baseDir, creating the
// directory if needed. Blob files are owner read/write only: conversation
// history and the admin token live here.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Read returns the blob for a namespace.
func (s *FileStore) Read(namespace string) ([]byte, error) {
	data, err := os.ReadFile(s.path(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read namespace %s: %w", namespace, err)
	}
	return data, nil
}

// Write atomically replaces the blob for a namespace.
func (s *FileStore) Write(namespace string, data []byte) error {
	if err := util.AtomicWriteFile(s.path(namespace), data, 0600); err != nil {
		return fmt.Errorf("failed to write namespace %s: %w", namespace, err)
	}
	return nil
}

// Delete removes a namespace file.
func (s *FileStore) Delete(namespace string) error {
	err := os.Remove(s.path(namespace))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Clear removes every namespace file in the base directory.
func (s *FileStore) Clear() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear namespace %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// path returns the file path for a namespace.
func (s *FileStore) path(namespace string) string {
	return filepath.Join(s.baseDir, namespace+fileExt)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is an in-memory Store used by tests and for fully ephemeral
// sessions. It honors the same absence semantics as FileStore.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Read returns the blob for a namespace.
func (s *MemoryStore) Read(namespace string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[namespace]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write replaces the blob for a namespace.
func (s *MemoryStore) Write(namespace string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[namespace] = stored
	return nil
}

// Delete removes a namespace.
func (s *MemoryStore) Delete(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, namespace)
	return nil
}

// Clear removes every namespace.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string][]byte)
	return nil
}
