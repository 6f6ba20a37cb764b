package ffmpeg_test

import (
	"context"
	"strings"
	"testing"

	"vietdub/internal/queue"
	"vietdub/internal/services/ffmpeg"
)

func captureArgs(svc *ffmpeg.Service) *[][]string {
	var calls [][]string
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	})
	return &calls
}

func flat(call []string) string {
	return strings.Join(call, " ")
}

func TestMuxCopiesVideoAtSourceResolution(t *testing.T) {
	svc := ffmpeg.NewService()
	calls := captureArgs(svc)

	err := svc.Mux(context.Background(), ffmpeg.MuxSpec{
		Video:  "/job/source.mp4",
		Audio:  "/job/dubbed.wav",
		Output: "/out/final.mp4",
	})
	if err != nil {
		t.Fatalf("Mux failed: %v", err)
	}
	cmd := flat((*calls)[0])
	if !strings.Contains(cmd, "-c:v copy") {
		t.Fatalf("expected video stream copy: %s", cmd)
	}
	if strings.Contains(cmd, "scale=") {
		t.Fatalf("unexpected scaling at source resolution: %s", cmd)
	}
}

func TestMuxScalesAndEmbedsSubtitles(t *testing.T) {
	svc := ffmpeg.NewService()
	calls := captureArgs(svc)

	err := svc.Mux(context.Background(), ffmpeg.MuxSpec{
		Video:      "/job/source.mp4",
		Audio:      "/job/dubbed.wav",
		Subtitle:   "/job/subtitles.srt",
		Resolution: queue.Resolution720p,
		Output:     "/out/final.mp4",
	})
	if err != nil {
		t.Fatalf("Mux failed: %v", err)
	}
	cmd := flat((*calls)[0])
	if !strings.Contains(cmd, "scale=-2:720") {
		t.Fatalf("expected 720p scale filter: %s", cmd)
	}
	if !strings.Contains(cmd, "mov_text") {
		t.Fatalf("expected soft subtitle codec: %s", cmd)
	}
}

func TestMuxRequiresPaths(t *testing.T) {
	svc := ffmpeg.NewService()
	if err := svc.Mux(context.Background(), ffmpeg.MuxSpec{Video: "v"}); err == nil {
		t.Fatal("expected error for missing audio and output")
	}
}

func TestAtempoClampsFactor(t *testing.T) {
	svc := ffmpeg.NewService()
	calls := captureArgs(svc)

	if err := svc.Atempo(context.Background(), "in.wav", "out.wav", 0.1); err != nil {
		t.Fatalf("Atempo failed: %v", err)
	}
	if !strings.Contains(flat((*calls)[0]), "atempo=0.5000") {
		t.Fatalf("expected clamped factor: %s", flat((*calls)[0]))
	}
}

func TestConcatRejectsEmptyInput(t *testing.T) {
	svc := ffmpeg.NewService()
	if err := svc.ConcatWav(context.Background(), nil, "out.wav"); err == nil {
		t.Fatal("expected error for empty input list")
	}
}

func TestProbeParsesStreams(t *testing.T) {
	svc := ffmpeg.NewService()
	svc.WithOutputRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{
			"format": {"duration": "12.500000"},
			"streams": [{"codec_type": "video"}, {"codec_type": "audio"}, {"codec_type": "subtitle"}]
		}`), nil
	})

	info, err := svc.Probe(context.Background(), "/job/source.mp4")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.DurationSeconds != 12.5 {
		t.Fatalf("unexpected duration: %f", info.DurationSeconds)
	}
	if !info.HasVideo || !info.HasAudio || !info.HasSubtitle {
		t.Fatalf("unexpected stream flags: %#v", info)
	}
}

func TestExtractSubtitleArgs(t *testing.T) {
	var captured []string
	svc := ffmpeg.NewService()
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		captured = args
		return nil
	})

	if err := svc.ExtractSubtitle(context.Background(), "/job/source.mp4", "/job/source.srt"); err != nil {
		t.Fatalf("ExtractSubtitle failed: %v", err)
	}
	cmd := strings.Join(captured, " ")
	if !strings.Contains(cmd, "-map 0:s:0") || !strings.Contains(cmd, "-c:s srt") {
		t.Fatalf("unexpected args: %s", cmd)
	}
}
