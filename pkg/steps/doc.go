// Package steps implements the ordered pipeline steps that drive a
// storage backend through deployment and removal. Every step is
// idempotent: its skip probe consults live or persisted state so an
// interrupted pipeline can be re-run and resume past already-applied
// effects.
package steps
