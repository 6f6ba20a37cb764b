package media

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RenderSRT formats segments as an SRT document. Segments with no usable text
// are skipped so cue numbering stays contiguous.
func RenderSRT(segments []Segment) string {
	var sb strings.Builder
	cue := 0
	for _, seg := range segments {
		if seg.Empty() {
			continue
		}
		cue++
		sb.WriteString(strconv.Itoa(cue))
		sb.WriteByte('\n')
		sb.WriteString(formatSRTTimestamp(seg.Start))
		sb.WriteString(" --> ")
		sb.WriteString(formatSRTTimestamp(seg.End))
		sb.WriteByte('\n')
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// WriteSRT renders segments and writes them to path.
func WriteSRT(path string, segments []Segment) error {
	if err := os.WriteFile(path, []byte(RenderSRT(segments)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// CountSRTCues returns the number of cue blocks in an SRT file.
func CountSRTCues(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read srt: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return 0, nil
	}
	count := 0
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) != "" {
			count++
		}
	}
	return count, nil
}

func formatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	secs := millis / 1000
	millis -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseSRTTimestamp converts an SRT timestamp to seconds. Periods are
// accepted in place of the standard comma millisecond separator.
func ParseSRTTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
