// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the personachat command-line interface.
//
// The default command is an interactive chat REPL with persona switching,
// history, and slash commands. Non-interactive commands cover export,
// import, persona listing, configuration, and the admin login cycle.
//
// The CLI is a consumer of the core: it reads and writes through the
// ConversationStore and calls the CompletionGateway for replies, then
// persists successful turns itself. Failed turns are shown inline and
// never written to the durable log.
package cli
