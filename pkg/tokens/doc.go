// Package tokens provides fast character-based token estimation.
//
// The estimator never calls a tokenizer; it divides character counts by a
// per-model ratio (default 4 characters per token). Estimates feed cost
// projection and token-storm detection, where relative magnitude matters
// more than exact counts.
package tokens
