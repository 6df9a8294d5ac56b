package transcoder

import (
	"encoding/json"
	"fmt"
	"testing"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

func TestIsVideoCompatible(t *testing.T) {
	tests := []struct {
		name    string
		codec   string
		profile string
		want    bool
	}{
		{"h264 baseline", "h264", "baseline", true},
		{"h264 main", "h264", "main", true},
		{"h264 high", "h264", "high", true},
		{"h264 constrained baseline", "h264", "constrained baseline", true},
		{"h264 unknown profile", "h264", "high 10", false},
		{"hevc main", "hevc", "main", false},
		{"vp9", "vp9", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isVideoCompatible(tt.codec, tt.profile); got != tt.want {
				t.Errorf("isVideoCompatible(%q, %q) = %v, want %v", tt.codec, tt.profile, got, tt.want)
			}
		})
	}
}

func TestParseProbeData_StrategySelection(t *testing.T) {
	tests := []struct {
		name         string
		videoCodec   string
		videoProfile string
		audioCodec   string
		wantStrategy Strategy
		wantHLS      bool
	}{
		{"both compatible -> copy", "h264", "main", "aac", StrategyCopy, true},
		{"video ok audio not -> selective", "h264", "high", "mp3", StrategySelective, false},
		{"video not ok -> reencode", "hevc", "main", "aac", StrategyReencode, false},
		{"neither ok -> reencode", "mpeg4", "", "mp3", StrategyReencode, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := fmt.Sprintf(`{"streams":[{"codec_type":"video","codec_name":%q,"profile":%q},{"codec_type":"audio","codec_name":%q}]}`,
				tt.videoCodec, tt.videoProfile, tt.audioCodec)
			var data ffprobe.ProbeData
			if err := json.Unmarshal([]byte(raw), &data); err != nil {
				t.Fatalf("unmarshal probe data: %v", err)
			}

			got := parseProbeData(&data)

			if got.Strategy != tt.wantStrategy {
				t.Errorf("strategy = %v, want %v", got.Strategy, tt.wantStrategy)
			}
			if got.IsHLSCompatible != tt.wantHLS {
				t.Errorf("isHLSCompatible = %v, want %v", got.IsHLSCompatible, tt.wantHLS)
			}
		})
	}
}

func TestUnknownProbeResult(t *testing.T) {
	r := unknownProbeResult()
	if r.VideoCodec != "unknown" || r.AudioCodec != "unknown" {
		t.Errorf("unknownProbeResult() codecs = %q/%q, want unknown/unknown", r.VideoCodec, r.AudioCodec)
	}
	if r.Strategy != StrategyReencode {
		t.Errorf("unknownProbeResult() strategy = %v, want reencode", r.Strategy)
	}
	if r.IsHLSCompatible {
		t.Error("unknownProbeResult() should never report HLS-compatible")
	}
}
