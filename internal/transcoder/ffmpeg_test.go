package transcoder

import "testing"

func TestDefaultFFmpegConfig(t *testing.T) {
	cfg := DefaultFFmpegConfig()

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"FFmpegPath", cfg.FFmpegPath, "ffmpeg"},
		{"HLSSegmentDuration", cfg.HLSSegmentDuration, 3},
		{"VideoPreset", cfg.VideoPreset, "medium"},
		{"VideoCRF", cfg.VideoCRF, 23},
		{"AudioBitrate", cfg.AudioBitrate, "128k"},
		{"ThumbnailTimestamp", cfg.ThumbnailTimestamp, "00:00:01.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, expected %v", tt.got, tt.expected)
			}
		})
	}
}

func TestFFmpegRunner_BuildHLSArgs_Copy(t *testing.T) {
	r := NewFFmpegRunner(DefaultFFmpegConfig())
	args := r.buildHLSArgs(StrategyCopy, "/in/source.mp4", "/work/index.m3u8")

	want := []string{
		"-y", "-i", "/in/source.mp4",
		"-c", "copy",
		"-start_number", "0",
		"-hls_time", "3",
		"-hls_list_size", "0",
		"-f", "hls",
		"/work/index.m3u8",
	}
	assertArgsEqual(t, args, want)
}

func TestFFmpegRunner_BuildHLSArgs_Selective(t *testing.T) {
	r := NewFFmpegRunner(DefaultFFmpegConfig())
	args := r.buildHLSArgs(StrategySelective, "/in/source.mp4", "/work/index.m3u8")

	want := []string{
		"-y", "-i", "/in/source.mp4",
		"-c:v", "copy", "-c:a", "aac", "-b:a", "128k",
		"-start_number", "0",
		"-hls_time", "3",
		"-hls_list_size", "0",
		"-f", "hls",
		"/work/index.m3u8",
	}
	assertArgsEqual(t, args, want)
}

func TestFFmpegRunner_BuildHLSArgs_Reencode(t *testing.T) {
	r := NewFFmpegRunner(DefaultFFmpegConfig())
	args := r.buildHLSArgs(StrategyReencode, "/in/source.mp4", "/work/index.m3u8")

	want := []string{
		"-y", "-i", "/in/source.mp4",
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-start_number", "0",
		"-hls_time", "3",
		"-hls_list_size", "0",
		"-f", "hls",
		"/work/index.m3u8",
	}
	assertArgsEqual(t, args, want)
}

func TestFFmpegRunner_FfmpegPath_DefaultsWhenEmpty(t *testing.T) {
	r := NewFFmpegRunner(FFmpegConfig{})
	if got := r.ffmpegPath(); got != "ffmpeg" {
		t.Errorf("ffmpegPath() = %q, want ffmpeg", got)
	}
}

func TestFFmpegRunner_FfmpegPath_RespectsConfig(t *testing.T) {
	r := NewFFmpegRunner(FFmpegConfig{FFmpegPath: "/usr/local/bin/ffmpeg"})
	if got := r.ffmpegPath(); got != "/usr/local/bin/ffmpeg" {
		t.Errorf("ffmpegPath() = %q, want /usr/local/bin/ffmpeg", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate([]byte("short"), 10); got != "short" {
		t.Errorf("truncate() = %q, want short", got)
	}
	got := truncate([]byte("this is a long string"), 7)
	if got != "this is...(truncated)" {
		t.Errorf("truncate() = %q, want truncated form", got)
	}
}

func assertArgsEqual(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("arg count = %d, want %d\ngot:  %v\nwant: %v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
