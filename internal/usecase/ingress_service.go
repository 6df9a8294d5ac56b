package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
)

// IngressService implements the business logic shared by both admission
// paths from spec.md §4.4: the "on create"/"on finish" hooks for the
// resumable (TUS) path, and the one-shot write-then-publish flow for the
// direct path. HTTP- and TUS-library-specific glue lives in the
// infrastructure layer and the API handlers; this type only touches the
// domain.
type IngressService struct {
	repo      repository.VideoRepository
	queue     repository.MessageQueue
	validator *Validator
}

// NewIngressService constructs an IngressService.
func NewIngressService(repo repository.VideoRepository, queue repository.MessageQueue, validator *Validator) *IngressService {
	return &IngressService{repo: repo, queue: queue, validator: validator}
}

// OnUploadCreate is the "on create" hook for the resumable path: the
// referenced VideoRecord must exist and be uploading, and C2 is re-run
// against the declared size. Wired as tusd's Config.PreUploadCreateCallback.
// The direct path does not call it; ReceiveDirect makes its own existence
// and state check and re-runs C2 against the received byte count.
func (s *IngressService) OnUploadCreate(ctx context.Context, uploadID string, declaredSize int64) (*model.VideoRecord, error) {
	record, err := s.repo.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if record.Status != model.StatusUploading {
		return nil, repository.ErrInvalidState
	}
	if errs := s.validator.Validate(record.Filename, declaredSize, record.UploadType); len(errs) > 0 {
		return nil, errs
	}
	return record, nil
}

// OnUploadComplete is the "on finish" hook for the resumable path: reset
// progress to 0 (upload complete, processing not yet started) and publish
// the transcode job. Wired to drain tusd's Handler.CompleteUploads channel.
func (s *IngressService) OnUploadComplete(ctx context.Context, uploadID, filePath string) error {
	record, err := s.repo.Get(ctx, uploadID)
	if err != nil {
		return err
	}

	record.Progress = 0
	if err := s.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("reset progress on upload complete: %w", err)
	}

	return s.publishJob(ctx, record, filePath)
}

// ReceiveDirect implements the one-shot multipart path: re-validate against
// the actual byte count, write the body to uploadDir under the uploadId
// basename, and publish the job. On any failure the partial file is
// removed. body must already be capped by the caller (http.MaxBytesReader
// at 200 MiB) before this is invoked.
func (s *IngressService) ReceiveDirect(ctx context.Context, uploadID string, body io.Reader, uploadDir string) error {
	record, err := s.repo.Get(ctx, uploadID)
	if err != nil {
		return err
	}
	if record.Status != model.StatusUploading {
		return repository.ErrInvalidState
	}

	destPath := filepath.Join(uploadDir, uploadID)
	tmpPath := destPath + ".tmp"

	if err := s.writeToFile(tmpPath, body); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write direct upload body: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("stat direct upload body: %w", err)
	}
	if errs := s.validator.Validate(record.Filename, info.Size(), model.UploadDirect); len(errs) > 0 {
		os.Remove(tmpPath)
		return errs
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename direct upload body to uploadId basename: %w", err)
	}

	if err := s.publishJob(ctx, record, destPath); err != nil {
		os.Remove(destPath)
		return err
	}

	return nil
}

func (s *IngressService) writeToFile(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, body)
	return err
}

func (s *IngressService) publishJob(ctx context.Context, record *model.VideoRecord, filePath string) error {
	task := repository.TranscodeTask{
		UploadID:    record.ID,
		FilePath:    filePath,
		Filename:    record.Filename,
		Packager:    record.Packager,
		CallbackURL: record.CallbackURL,
		S3Path:      record.S3Path,
		UploadToS3:  record.UploadToS3,
	}
	if err := s.queue.PublishTranscodeTask(ctx, task); err != nil {
		return fmt.Errorf("publish transcode task: %w", err)
	}
	return nil
}
