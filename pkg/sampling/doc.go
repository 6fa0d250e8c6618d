// Package sampling selects requests for deep asynchronous analysis,
// adapting the sampling rate to each entity's recent risk history.
package sampling
