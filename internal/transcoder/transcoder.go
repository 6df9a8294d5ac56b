package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
	"github.com/vellum-stream/pipeline/internal/infrastructure/metrics"
)

// JobConfig configures the Job orchestrator.
type JobConfig struct {
	// WorkDirBase is the parent directory under which each job gets its own
	// WorkDirBase/<uploadId> scratch directory.
	WorkDirBase string
}

// prober is the subset of *Prober that Job depends on, narrowed to an
// interface so tests can substitute a fake instead of shelling out to
// ffprobe.
type prober interface {
	Probe(ctx context.Context, sourcePath string) ProbeResult
}

// ffmpegRunner is the subset of *FFmpegRunner that Job depends on, narrowed
// to an interface for the same reason.
type ffmpegRunner interface {
	RunHLS(ctx context.Context, strategy Strategy, inputPath, workDir string) error
	ExtractThumbnail(ctx context.Context, inputPath, workDir string) error
	EnsureMP4(ctx context.Context, sourcePath, workDir, sourceContainer string) (string, error)
}

// Job is the single entry point (transcodeAndUpload, §4.7) that turns one
// admitted upload into a published HLS rendition: probe, transcode,
// thumbnail, optional MP4, publish, metadata. It owns the terminal
// completed/failed transition of the VideoRecord; webhook dispatch and
// cleanup are separate steps the caller runs after this returns.
type Job struct {
	repo    repository.VideoRepository
	storage repository.ObjectStorage
	prober  prober
	ffmpeg  ffmpegRunner
	cfg     JobConfig
}

// NewJob constructs a Job wired to the real *Prober/*FFmpegRunner.
func NewJob(repo repository.VideoRepository, storage repository.ObjectStorage, p *Prober, f *FFmpegRunner, cfg JobConfig) *Job {
	return &Job{repo: repo, storage: storage, prober: p, ffmpeg: f, cfg: cfg}
}

type sourceCodecs struct {
	Video   string `json:"video"`
	Audio   string `json:"audio"`
	Profile string `json:"profile"`
}

type artifactMetadata struct {
	Name                string       `json:"name"`
	Packager            string       `json:"packager"`
	CreatedAt           time.Time    `json:"createdAt"`
	Source              string       `json:"source"`
	HasThumbnail        bool         `json:"hasThumbnail"`
	TranscodingStrategy Strategy     `json:"transcodingStrategy"`
	SourceCodecs        sourceCodecs `json:"sourceCodecs"`
	HLSCompatible       bool         `json:"hlsCompatible"`
}

// TranscodeAndUpload runs steps 1-13 of §4.7 against an already-admitted,
// already-guarded task. The caller (the worker's job handler) is
// responsible for tryAcquireForProcessing and for acking the queue message
// before this is invoked; TranscodeAndUpload only ever touches the record
// that guard already claimed.
func (j *Job) TranscodeAndUpload(ctx context.Context, task repository.TranscodeTask) error {
	record, err := j.repo.Get(ctx, task.UploadID)
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}

	// Step 1: no-op if already completed; on a retry from failed, move the
	// record back to processing, reset progress and clear the error.
	if record.Status == model.StatusCompleted {
		return nil
	}
	if record.Status == model.StatusFailed {
		if err := record.TransitionTo(model.StatusProcessing); err != nil {
			return fmt.Errorf("transition failed record to processing for retry: %w", err)
		}
		record.Progress = 25
		record.Error = ""
		if err := j.repo.Update(ctx, record); err != nil {
			return fmt.Errorf("reset failed record for retry: %w", err)
		}
	}

	// Step 2.
	workDir := filepath.Join(j.cfg.WorkDirBase, task.UploadID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return j.fail(ctx, record, "unknown", fmt.Errorf("create work directory: %w", err))
	}

	// Step 3.
	probeResult := j.prober.Probe(ctx, task.FilePath)
	strategy := probeResult.Strategy

	// Steps 4-5, with the fallback-once-to-reencode rule from step 7.
	if err := j.ffmpeg.RunHLS(ctx, strategy, task.FilePath, workDir); err != nil {
		if strategy == StrategyReencode {
			return j.fail(ctx, record, strategy, fmt.Errorf("hls transcode: %w", err))
		}
		slog.Warn("hls transcode failed, falling back to full reencode",
			"upload_id", task.UploadID, "strategy", strategy, "error", err)
		strategy = StrategyReencode
		if err := j.ffmpeg.RunHLS(ctx, strategy, task.FilePath, workDir); err != nil {
			return j.fail(ctx, record, strategy, fmt.Errorf("hls transcode after reencode fallback: %w", err))
		}
	}

	record.Progress = 60
	if err := j.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("update progress after hls transcode: %w", err)
	}

	// Step 6. Thumbnail failures are logged, not fatal: a missing preview
	// image doesn't make the rendition unplayable.
	hasThumbnail := true
	if err := j.ffmpeg.ExtractThumbnail(ctx, task.FilePath, workDir); err != nil {
		slog.Warn("thumbnail extraction failed, continuing without one",
			"upload_id", task.UploadID, "error", err)
		hasThumbnail = false
	}
	record.Progress = 75
	if err := j.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("update progress after thumbnail: %w", err)
	}

	// Step 8. MP4 failures are logged and swallowed per §4.7/§9.
	mp4Path := ""
	if task.UploadToS3 {
		path, err := j.ffmpeg.EnsureMP4(ctx, task.FilePath, workDir, probeResult.Container)
		if err != nil {
			slog.Warn("mp4 render failed, continuing without one",
				"upload_id", task.UploadID, "error", err)
		} else {
			mp4Path = path
		}
	}

	// Step 9: another actor (a redelivered/overlapping attempt) may have
	// already completed this record while we were transcoding.
	record, err = j.repo.Get(ctx, task.UploadID)
	if err != nil {
		return fmt.Errorf("re-check record before publish: %w", err)
	}
	if record.Status == model.StatusCompleted {
		return nil
	}

	// Step 10.
	baseProgress := 85
	if strategy == StrategyReencode {
		baseProgress = 80
	}
	record.Progress = baseProgress
	if err := j.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("update progress before publish: %w", err)
	}

	// Step 12 (written before publish so the walk in step 11 picks it up).
	metadata := artifactMetadata{
		Name:                task.Filename,
		Packager:            record.Packager,
		CreatedAt:           time.Now(),
		Source:              task.Filename,
		HasThumbnail:        hasThumbnail,
		TranscodingStrategy: strategy,
		SourceCodecs: sourceCodecs{
			Video:   probeResult.VideoCodec,
			Audio:   probeResult.AudioCodec,
			Profile: probeResult.VideoProfile,
		},
		HLSCompatible: probeResult.IsHLSCompatible,
	}
	if err := writeMetadata(workDir, metadata); err != nil {
		return j.fail(ctx, record, strategy, fmt.Errorf("write metadata.json: %w", err))
	}

	// Step 11.
	prefix := record.KeyPrefix()
	publishStart := time.Now()
	publishErr := j.storage.PublishTree(ctx, workDir, prefix, func(p repository.PublishProgress) {
		j.reportPublishProgress(ctx, record, baseProgress, p)
	})
	metrics.PublishBatchDurationSeconds.Observe(time.Since(publishStart).Seconds())
	if publishErr != nil {
		return j.fail(ctx, record, strategy, fmt.Errorf("publish rendition tree: %w", publishErr))
	}

	// Step 13.
	record.StreamURL = fmt.Sprintf("%s.%s/%s/index.m3u8", j.storage.Bucket(), j.storage.Endpoint(), prefix)
	if hasThumbnail {
		record.ThumbnailURL = fmt.Sprintf("%s.%s/%s/thumbnail.jpg", j.storage.Bucket(), j.storage.Endpoint(), prefix)
	}
	if mp4Path != "" {
		record.MP4URL = fmt.Sprintf("%s.%s/%s/video.mp4", j.storage.Bucket(), j.storage.Endpoint(), prefix)
	}
	record.Progress = 100
	if err := record.TransitionTo(model.StatusCompleted); err != nil {
		return fmt.Errorf("transition to completed: %w", err)
	}
	if err := j.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("persist completed record: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues(string(strategy), metrics.OutcomeCompleted).Inc()
	return nil
}

// reportPublishProgress maps a PublishTree progress callback onto the
// 80-95 (or 85-95) band, clamped at 95 per §4.8, and persists it
// best-effort: a progress-update failure never aborts the publish.
func (j *Job) reportPublishProgress(ctx context.Context, record *model.VideoRecord, base int, p repository.PublishProgress) {
	if p.FilesTotal <= 10 {
		return
	}
	if p.FilesDone%5 != 0 && p.FilesDone != p.FilesTotal {
		return
	}

	span := 95 - base
	progress := base + int(float64(span)*float64(p.FilesDone)/float64(p.FilesTotal))
	if progress > 95 {
		progress = 95
	}

	current, err := j.repo.Get(ctx, record.ID)
	if err != nil {
		return
	}
	current.Progress = progress
	if err := j.repo.Update(ctx, current); err != nil {
		slog.Warn("failed to persist publish progress", "upload_id", record.ID, "error", err)
	}
}

// fail records the terminal failure state for record and returns the
// original error, wrapped, so the caller's logs show both.
func (j *Job) fail(ctx context.Context, record *model.VideoRecord, strategy Strategy, cause error) error {
	record.Error = cause.Error()
	if err := record.TransitionTo(model.StatusFailed); err != nil {
		record.Status = model.StatusFailed
	}
	if err := j.repo.Update(ctx, record); err != nil {
		slog.Error("failed to persist failed status", "upload_id", record.ID, "error", err)
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(strategy), metrics.OutcomeFailed).Inc()
	return cause
}

func writeMetadata(workDir string, metadata artifactMetadata) error {
	body, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, "metadata.json"), body, 0o644)
}
