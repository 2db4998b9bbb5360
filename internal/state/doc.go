// Package state holds the bot's durable scheduling state.
//
// Two structures make up the full state:
//   - Registry: per-recipient profile, blocked flag and next-eligible time
//   - Ledger: per-recipient set of already-delivered content item IDs
//
// Both are loaded once at startup and written back after every mutation.
// Writes are all-or-nothing: the file driver renames a fresh snapshot over
// the previous one, the sqlite driver commits a transaction.
package state
