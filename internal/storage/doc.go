// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the persona-scoped conversation store for
// personachat.
//
// The ConversationStore owns all durable state: per-persona message logs,
// persona configuration, the last-selected persona, and the admin bearer
// token. It is the only component permitted to write to the key-value
// substrate (see internal/kvstore).
//
// # Key Types
//
//   - ConversationStore: persona-scoped reads/writes over the substrate
//   - Snapshot: the export/import aggregate for backup and restore
//
// # Failure Policy
//
// Substrate failures never propagate out of this package. Every operation
// catches serialization and I/O errors at its boundary, logs them, and
// returns a neutral value (false, empty, or a built-in default). A storage
// hiccup must never crash the conversation flow.
//
// # Concurrency
//
// Every mutation re-reads the full namespace blob, changes one key, and
// writes the whole blob back. Two overlapping read-modify-write sequences
// can therefore lose an update; the store assumes a single active writer
// and does not enforce mutual exclusion.
package storage
