package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdir moves into an empty directory so no stray .env file is picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	conf, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if conf.LogLevel != "info" || conf.SampleFormat != "f32le" || conf.ChunkSamples != 1024 {
		t.Fatalf("unexpected defaults %+v", conf)
	}
	if conf.Tick != 250*time.Millisecond || conf.Policy != "probabilistic" {
		t.Fatalf("unexpected defaults %+v", conf)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUDIOSEED_SAMPLE_FORMAT", "s16le")
	t.Setenv("AUDIOSEED_CHUNK_SAMPLES", "256")
	t.Setenv("AUDIOSEED_TICK", "0")
	t.Setenv("AUDIOSEED_METRICS_LISTEN", "localhost:9100")

	conf, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if conf.SampleFormat != "s16le" || conf.ChunkSamples != 256 || conf.Tick != 0 || conf.MetricsListen != "localhost:9100" {
		t.Fatalf("environment not applied: %+v", conf)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AUDIOSEED_POLICY=strict\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// godotenv never overrides variables that are already set
	t.Setenv("AUDIOSEED_POLICY", "")
	os.Unsetenv("AUDIOSEED_POLICY")

	conf, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if conf.Policy != "strict" {
		t.Fatalf("policy = %q, want strict from .env", conf.Policy)
	}
}

func TestLoadRejectsBadChunkSize(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUDIOSEED_CHUNK_SAMPLES", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	if err := Usage(&buf); err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	for _, key := range []string{"AUDIOSEED_SAMPLE_FORMAT", "AUDIOSEED_METRICS_LISTEN", "AUDIOSEED_TICK"} {
		if !strings.Contains(buf.String(), key) {
			t.Fatalf("usage output missing %s:\n%s", key, buf.String())
		}
	}
}
