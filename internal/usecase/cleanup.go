package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vellum-stream/pipeline/internal/domain/repository"
)

// CleanupConfig configures where each removable artifact of a job lives.
type CleanupConfig struct {
	// WorkDirBase is the transcoder's scratch-directory parent; mirrors
	// transcoder.JobConfig.WorkDirBase so cleanup finds the same directory
	// the job wrote into.
	WorkDirBase string
}

// CleanupService removes every on-disk artifact of a finished job. It runs
// unconditionally after the job reaches a terminal state (completed or
// failed, §4.10) and never alters that terminal state itself: every
// removal is best-effort and its outcome is only ever logged.
type CleanupService struct {
	cfg CleanupConfig
}

// NewCleanupService constructs a CleanupService.
func NewCleanupService(cfg CleanupConfig) *CleanupService {
	return &CleanupService{cfg: cfg}
}

// Cleanup removes, in parallel: the original uploaded file, its TUS sidecar
// metadata (tusd's filestore writes a "<id>.info" JSON file next to the
// data file; direct uploads never have one, so that removal harmlessly
// reports not-found), and the transcoder's work directory for this job.
func (s *CleanupService) Cleanup(ctx context.Context, task repository.TranscodeTask) {
	targets := []string{
		task.FilePath,
		task.FilePath + ".info",
	}
	if s.cfg.WorkDirBase != "" {
		targets = append(targets, filepath.Join(s.cfg.WorkDirBase, task.UploadID))
	}

	var wg sync.WaitGroup
	for _, path := range targets {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			removePath(task.UploadID, path)
		}(path)
	}
	wg.Wait()
}

func removePath(uploadID, path string) {
	if path == "" {
		return
	}
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		slog.Info("cleanup: nothing to remove", "upload_id", uploadID, "path", path)
		return
	}
	if err := os.RemoveAll(path); err != nil {
		slog.Warn("cleanup: failed to remove artifact", "upload_id", uploadID, "path", path, "error", err)
	}
}
