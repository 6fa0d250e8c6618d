// Package storage provides persistence sinks for the spending ledger.
//
// Two implementations are available: MemorySink for tests and
// memory-only deployments, and SQLiteSink for single-instance
// deployments that need spend accounting to survive restarts.
package storage
