// Package whisper wraps the whisper binary for speech recognition.
package whisper
