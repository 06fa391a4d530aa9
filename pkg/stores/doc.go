// Package stores provides the durable registration layer for
// backendctl. It includes a SQLite-based store with WAL mode and
// embedded schema migrations, and an in-memory store used by tests
// and ephemeral runs.
package stores
