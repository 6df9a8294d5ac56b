// Package transcoder turns an uploaded source file into an HLS rendition,
// probing its codecs first to decide how much of the FFmpeg pipeline can be
// a stream copy.
package transcoder

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Strategy is the FFmpeg command shape to use for a given source.
type Strategy string

const (
	// StrategyCopy stream-copies both video and audio untouched.
	StrategyCopy Strategy = "copy"
	// StrategySelective stream-copies video and re-encodes only audio.
	StrategySelective Strategy = "selective"
	// StrategyReencode re-encodes both video and audio.
	StrategyReencode Strategy = "reencode"
)

// compatibleVideoProfiles are the H.264 profiles that play back natively in
// HLS without a re-encode.
var compatibleVideoProfiles = map[string]struct{}{
	"baseline":             {},
	"main":                 {},
	"high":                 {},
	"constrained baseline": {},
}

// ProbeResult is the subset of ffprobe output the strategy decision and the
// job's metadata.json need.
type ProbeResult struct {
	VideoCodec      string
	AudioCodec      string
	VideoProfile    string
	VideoLevel      int
	Container       string
	IsHLSCompatible bool
	Strategy        Strategy
}

// unknownProbeResult is returned when ffprobe itself fails; per the codec
// prober's fallback rule the job still proceeds, forced to a full reencode.
func unknownProbeResult() ProbeResult {
	return ProbeResult{
		VideoCodec: "unknown",
		AudioCodec: "unknown",
		Strategy:   StrategyReencode,
	}
}

// Prober runs ffprobe against a source file and derives a transcode Strategy.
type Prober struct {
	// Timeout bounds a single ffprobe invocation. Zero uses a 60s default.
	Timeout time.Duration
}

// NewProber constructs a Prober with the default timeout.
func NewProber() *Prober {
	return &Prober{Timeout: 60 * time.Second}
}

// Probe inspects sourcePath and returns a ProbeResult. It never returns an
// error: a failed probe degrades to unknownProbeResult so the caller can
// always proceed with the fallback reencode strategy, per §4.6.
func (p *Prober) Probe(ctx context.Context, sourcePath string) ProbeResult {
	data, err := p.runProbe(ctx, sourcePath)
	if err != nil {
		return unknownProbeResult()
	}
	return parseProbeData(data)
}

func (p *Prober) runProbe(ctx context.Context, sourcePath string) (*ffprobe.ProbeData, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := ffprobe.ProbeURL(probeCtx, sourcePath)
		if err != nil {
			return err
		}
		data = result
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)); err != nil {
		return nil, err
	}
	return data, nil
}

func parseProbeData(data *ffprobe.ProbeData) ProbeResult {
	result := ProbeResult{Strategy: StrategyReencode}

	if data.Format != nil {
		result.Container = data.Format.FormatName
	}

	videoStream := data.FirstVideoStream()
	if videoStream != nil {
		result.VideoCodec = videoStream.CodecName
		result.VideoProfile = strings.ToLower(videoStream.Profile)
		result.VideoLevel = int(videoStream.Level)
	} else {
		result.VideoCodec = "unknown"
	}

	audioStream := data.FirstAudioStream()
	if audioStream != nil {
		result.AudioCodec = audioStream.CodecName
	} else {
		result.AudioCodec = "unknown"
	}

	videoCompatible := isVideoCompatible(result.VideoCodec, result.VideoProfile)
	audioCompatible := strings.EqualFold(result.AudioCodec, "aac")

	result.IsHLSCompatible = videoCompatible && audioCompatible

	switch {
	case videoCompatible && audioCompatible:
		result.Strategy = StrategyCopy
	case videoCompatible:
		result.Strategy = StrategySelective
	default:
		result.Strategy = StrategyReencode
	}

	return result
}

func isVideoCompatible(codec, profile string) bool {
	if !strings.EqualFold(codec, "h264") {
		return false
	}
	_, ok := compatibleVideoProfiles[profile]
	return ok
}
