// Package identity provides the player registry mapping display names to stable ids.
// Names are mutable and resolved case-insensitively, ids never change and are the only
// thing stored on vote boards. The registry is kept in SQLite with WAL mode enabled.
package identity
