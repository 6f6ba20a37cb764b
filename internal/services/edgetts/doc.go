// Package edgetts wraps the edge-tts binary for speech synthesis.
package edgetts
