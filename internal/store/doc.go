// Package store provides per-context durable storage for tyuo.
//
// Every context owns one SQLite file holding four tables:
//   - dictionary: canonical token text, id, occurrence count, capitalization blob
//   - dictionary_banned: banned substrings for the context
//   - transitions_forward / transitions_reverse: one adjacency blob per source id
//
// Edge rows reference dictionary(id) with ON DELETE CASCADE, so removing a token
// row removes its nodes in both directions.
//
// # Interfaces
//
// Manager opens, checks and deletes stores by context id. Store exposes
// non-transactional reads plus Update, which runs a function inside one
// transaction: either every write in it becomes visible or none does.
// Memory implements the same interfaces for unit tests.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Blobs are opaque here; internal/codec owns their layout.
package store
