// Package admission is the top-level admission control surface for LLM
// traffic.
//
// The Controller composes the budget guard (spend limits, rate limits,
// velocity anomaly detection), the synchronous threat pattern scan, the
// adaptive sampler, and the bounded async analysis pipeline into a single
// Capture call. Every outcome is a Decision value; policy violations are
// never errors.
//
// Subpackages:
//
//   - ratelimit: weighted sliding-window limiters
//   - velocity: spend velocity tracking against a rolling baseline
//   - budget: the guard, spending ledger, and alert log
//   - storage: ledger persistence sinks
//   - retention: cron-scheduled ledger pruning
package admission
