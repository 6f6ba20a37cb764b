// Package ytdlp wraps the yt-dlp binary for source video downloads.
package ytdlp
