// Mercator Ganymede is an admission control and risk scoring runtime for
// LLM traffic.
//
// It evaluates every request against budget limits, rate limits, and spend
// velocity, scans prompts for threat patterns, and samples risky traffic
// into an asynchronous deep-analysis pipeline:
//   - Multi-tier budget enforcement (daily, hourly, per-request, per-entity)
//   - Sliding-window request and token rate limits
//   - Threat pattern detection (injection, PII, secrets, jailbreak,
//     token storm)
//   - Adaptive sampling with per-entity risk history
//   - Cron-scheduled ledger retention
//
// Usage:
//
//	# Start the controller with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	ganymede validate --config /path/to/config.yaml
//
//	# Inspect a pricing table
//	ganymede pricing --file pricing.yaml --format json
//
//	# Show version information
//	ganymede version
//
// For complete documentation, see: https://github.com/mercator-hq/ganymede
package main

func main() {
	Execute()
}
