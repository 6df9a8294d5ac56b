package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vellum-stream/pipeline/internal/infrastructure/metrics"
)

// FFmpegConfig holds the tunable parameters of the FFmpeg command lines this
// package builds. The codec choices themselves (libx264/aac) are fixed by
// the strategy, not configurable, since they are what makes the output
// HLS-safe.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary. Empty uses "ffmpeg" from PATH.
	FFmpegPath string
	// HLSSegmentDuration is the target segment length in seconds.
	HLSSegmentDuration int
	// VideoPreset controls the libx264 speed/quality tradeoff on a reencode.
	VideoPreset string
	// VideoCRF is the libx264 constant-rate-factor on a reencode.
	VideoCRF int
	// AudioBitrate is applied whenever audio is re-encoded (selective or reencode).
	AudioBitrate string
	// ThumbnailTimestamp is where the single thumbnail frame is captured.
	ThumbnailTimestamp string
}

// DefaultFFmpegConfig returns the values named in §4.7.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:         "ffmpeg",
		HLSSegmentDuration: 3,
		VideoPreset:        "medium",
		VideoCRF:           23,
		AudioBitrate:       "128k",
		ThumbnailTimestamp: "00:00:01.000",
	}
}

// FFmpegRunner executes ffmpeg as a subprocess to produce each artifact the
// transcoder needs: the HLS rendition, a thumbnail, and (optionally) an MP4.
type FFmpegRunner struct {
	config FFmpegConfig
}

// NewFFmpegRunner constructs an FFmpegRunner.
func NewFFmpegRunner(cfg FFmpegConfig) *FFmpegRunner {
	return &FFmpegRunner{config: cfg}
}

// RunHLS transcodes inputPath into an HLS rendition under workDir, per the
// command shape for strategy in §4.7 step 4. The manifest is always named
// index.m3u8; RunHLS verifies it was actually produced before returning
// success, since ffmpeg can exit 0 on some malformed inputs without
// emitting a playable manifest.
func (r *FFmpegRunner) RunHLS(ctx context.Context, strategy Strategy, inputPath, workDir string) error {
	manifestPath := filepath.Join(workDir, "index.m3u8")
	args := r.buildHLSArgs(strategy, inputPath, manifestPath)

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.ffmpegPath(), args...)
	output, err := cmd.CombinedOutput()
	metrics.FFmpegDurationSeconds.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("ffmpeg hls (%s): %w: %s", strategy, err, truncate(output, 2048))
	}

	if _, statErr := os.Stat(manifestPath); statErr != nil {
		return fmt.Errorf("ffmpeg hls (%s) reported success but %s is missing: %w", strategy, manifestPath, statErr)
	}

	return nil
}

func (r *FFmpegRunner) buildHLSArgs(strategy Strategy, inputPath, manifestPath string) []string {
	args := []string{"-y", "-i", inputPath}

	switch strategy {
	case StrategyCopy:
		args = append(args, "-c", "copy")
	case StrategySelective:
		args = append(args, "-c:v", "copy", "-c:a", "aac", "-b:a", r.config.AudioBitrate)
	default: // StrategyReencode
		args = append(args,
			"-c:v", "libx264", "-preset", r.config.VideoPreset, "-crf", fmt.Sprintf("%d", r.config.VideoCRF),
			"-c:a", "aac", "-b:a", r.config.AudioBitrate,
		)
	}

	args = append(args,
		"-start_number", "0",
		"-hls_time", fmt.Sprintf("%d", r.config.HLSSegmentDuration),
		"-hls_list_size", "0",
		"-f", "hls",
		manifestPath,
	)
	return args
}

// ExtractThumbnail captures a single frame at ThumbnailTimestamp into
// workDir/thumbnail.jpg.
func (r *FFmpegRunner) ExtractThumbnail(ctx context.Context, inputPath, workDir string) error {
	outPath := filepath.Join(workDir, "thumbnail.jpg")
	args := []string{
		"-y",
		"-ss", r.config.ThumbnailTimestamp,
		"-i", inputPath,
		"-vframes", "1",
		outPath,
	}

	cmd := exec.CommandContext(ctx, r.ffmpegPath(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w: %s", err, truncate(output, 2048))
	}
	return nil
}

// EnsureMP4 produces workDir/video.mp4: a byte-for-byte copy of the source
// when its container is already MP4, otherwise a fresh libx264/AAC render
// with +faststart for progressive playback.
func (r *FFmpegRunner) EnsureMP4(ctx context.Context, sourcePath, workDir, sourceContainer string) (string, error) {
	destPath := filepath.Join(workDir, "video.mp4")

	if strings.Contains(strings.ToLower(sourceContainer), "mp4") {
		if err := copyFile(sourcePath, destPath); err != nil {
			return "", fmt.Errorf("copy source as mp4 render: %w", err)
		}
		return destPath, nil
	}

	args := []string{
		"-y", "-i", sourcePath,
		"-c:v", "libx264", "-preset", r.config.VideoPreset, "-crf", fmt.Sprintf("%d", r.config.VideoCRF),
		"-c:a", "aac", "-b:a", r.config.AudioBitrate,
		"-movflags", "+faststart",
		destPath,
	}

	cmd := exec.CommandContext(ctx, r.ffmpegPath(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg mp4 render: %w: %s", err, truncate(output, 2048))
	}
	return destPath, nil
}

func (r *FFmpegRunner) ffmpegPath() string {
	if r.config.FFmpegPath == "" {
		return "ffmpeg"
	}
	return r.config.FFmpegPath
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Close()
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
