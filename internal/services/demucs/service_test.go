package demucs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vietdub/internal/services/demucs"
)

func TestSeparateFlattensStems(t *testing.T) {
	outDir := t.TempDir()
	svc := demucs.NewService("htdemucs")

	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		// Simulate demucs writing its nested output layout.
		stemDir := filepath.Join(outDir, "htdemucs", "audio")
		if err := os.MkdirAll(stemDir, 0o755); err != nil {
			return err
		}
		for _, stem := range []string{"vocals.wav", "no_vocals.wav"} {
			if err := os.WriteFile(filepath.Join(stemDir, stem), []byte("wav"), 0o644); err != nil {
				return err
			}
		}
		return nil
	})

	result, err := svc.Separate(context.Background(), "/staging/job/audio.wav", outDir)
	if err != nil {
		t.Fatalf("Separate failed: %v", err)
	}
	if result.VocalsPath != filepath.Join(outDir, "vocals.wav") {
		t.Fatalf("unexpected vocals path: %s", result.VocalsPath)
	}
	if result.InstrumentalPath != filepath.Join(outDir, "instrumental.wav") {
		t.Fatalf("unexpected instrumental path: %s", result.InstrumentalPath)
	}
	for _, path := range []string{result.VocalsPath, result.InstrumentalPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("stem missing after flatten: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "htdemucs")); !os.IsNotExist(err) {
		t.Fatal("expected nested demucs directory removed")
	}
}

func TestSeparateFailsWhenStemsMissing(t *testing.T) {
	svc := demucs.NewService("")
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return nil
	})
	if _, err := svc.Separate(context.Background(), "/staging/job/audio.wav", t.TempDir()); err == nil {
		t.Fatal("expected error when demucs produced no stems")
	}
}
