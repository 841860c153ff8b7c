// Package vad provides energy-based voice activity detection.
// Segments whose windows never rise above the threshold are treated as
// silence and skipped before they reach the recognition provider.
package vad
