// Package ffmpeg wraps the ffmpeg and ffprobe binaries for the audio and
// container operations the pipeline needs: audio extraction, silence
// generation, tempo adjustment, concatenation, mixing, probing, and the
// final mux.
package ffmpeg
