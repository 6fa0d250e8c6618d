// Package detect scores prompts and responses for security threats.
//
// The Detector runs precompiled weighted pattern tables per threat
// category (prompt injection, PII exposure, sensitive disclosure,
// jailbreak, token storm) and produces a bounded 0-10 risk score where
// the single worst category dominates. The StormDetector is a
// lighter-weight rate-shaping signal that combines a tokens-per-second
// window with amplification phrasing.
package detect
