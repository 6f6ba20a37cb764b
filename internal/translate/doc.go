// Package translate implements the translation fallback chain: an ordered
// list of engines tried one after another until a full batch succeeds.
// Batches are atomic, partial results from a failed engine are discarded,
// and an exhausted chain reports every engine's failure reason.
package translate
