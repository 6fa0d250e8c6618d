// Package storage persists completed security assessments.
package storage
