// Package analysis is the bounded asynchronous deep-analysis pipeline.
//
// Sampled requests are enqueued without ever blocking the caller: when
// the queue is full the new item is dropped and counted. A worker pool
// runs the full threat scan on queued items, persists the assessments,
// and raises immediate alerts on CRITICAL and HIGH findings.
package analysis
