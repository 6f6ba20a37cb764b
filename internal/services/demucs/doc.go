// Package demucs wraps the demucs binary for two-stem vocal separation.
package demucs
