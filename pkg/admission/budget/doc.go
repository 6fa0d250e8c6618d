// Package budget enforces spend and rate policy for request admission.
//
// The Guard evaluates every request against a fixed-priority sequence of
// checks (per-request cost, token storm, daily and hourly budgets,
// per-entity quotas, request and token rate windows, spend velocity) and
// records every outcome in an append-only spending Ledger. Estimated
// costs are corrected after the fact through RecordActualUsage without
// double counting.
//
// Persistence is write-behind through a pluggable Sink; in-memory state
// is authoritative and sink failures never fail a request.
package budget
