// Package engine manages the lifecycle of contexts.
//
// A context is one isolated model (dictionary, banned filter and both
// transition graphs) bound to its own store, keyed by an external string id.
// Contexts open lazily on first lookup and stay cached until dropped or until
// the engine closes.
//
// Concurrency model:
//   - Distinct contexts share no mutable state and run fully in parallel.
//   - Within one context, Learn, Ban and Unban hold an exclusive lock;
//     Generate, Banned and Stats share a read lock. A reader never observes a
//     half-applied write.
//   - DropContext waits for in-flight operations on the context, then
//     invalidates every handle to it. Later calls on a stale handle return
//     ErrContextDropped; a fresh GetContext creates a new, empty context.
//
//   - Opening a context runs outside the engine lock. Concurrent first
//     lookups of one id share a single open; a drop that lands mid-open
//     discards the half-opened context and the lookup opens a fresh one.
//
// Lock order is Engine before Context. Context methods never take the engine
// lock.
package engine
