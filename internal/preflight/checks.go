package preflight

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"vietdub/internal/deps"
	"vietdub/internal/services/demucs"
	"vietdub/internal/services/edgetts"
	"vietdub/internal/services/ffmpeg"
	"vietdub/internal/services/whisper"
	"vietdub/internal/services/ytdlp"
)

// minFreeBytes is the staging free-space floor. Intermediate WAV stems for a
// feature-length video run to several gigabytes.
const minFreeBytes = 2 << 30

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding path has working headroom.
func CheckDiskSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%.1f GiB free on %s", float64(free)/(1<<30), path)
	if free < minFreeBytes {
		return Result{Name: name, Detail: detail + " (below 2 GiB minimum)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckAPIBind verifies the configured API address is parseable and the port
// is numeric. It does not bind the socket; the daemon does that itself.
func CheckAPIBind(bind string) Result {
	const name = "API bind address"
	if bind == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if _, err := net.ResolveTCPAddr("tcp", bind); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err)}
	}
	return Result{Name: name, Passed: true, Detail: bind}
}

// CheckTools evaluates the external binaries the pipeline stages execute.
// FFmpeg and ffprobe block startup when missing; the per-stage tools are
// reported but left to their stage health checks, so a queue of local-file
// jobs can still drain without yt-dlp installed.
func CheckTools() []Result {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg.Command,
			Description: "Required for audio extraction, timeline assembly, and muxing",
		},
		{
			Name:        "FFprobe",
			Command:     ffmpeg.ProbeCommand,
			Description: "Required for media inspection",
		},
		{
			Name:        "yt-dlp",
			Command:     ytdlp.Command,
			Description: "Required for URL downloads",
			Optional:    true,
		},
		{
			Name:        "Demucs",
			Command:     demucs.Command,
			Description: "Required for vocal separation",
			Optional:    true,
		},
		{
			Name:        "Whisper",
			Command:     whisper.Command,
			Description: "Required for transcription",
			Optional:    true,
		},
		{
			Name:        "edge-tts",
			Command:     edgetts.Command,
			Description: "Required for speech synthesis",
			Optional:    true,
		},
	}

	statuses := deps.CheckBinaries(requirements)
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		detail := status.Command
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   detail,
		})
	}
	return results
}
