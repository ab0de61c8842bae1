// Package store provides the JSON-document StateStore implementations: a
// file store with an advisory file lock for the whole load-mutate-save
// cycle, and an in-memory store for tests and dry runs.
package store
