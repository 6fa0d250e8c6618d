// Package pricing provides model pricing lookup for cost projection.
//
// A Table maps model names to per-1K-token prices and cost-safety
// parameters (token-storm thresholds, context window sizes). Lookups fall
// back to a mandatory "default" entry so an unknown model never fails a
// request. Tables can be loaded from YAML files and hot-reloaded through
// a file watcher.
package pricing
