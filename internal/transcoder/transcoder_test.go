package transcoder

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
)

type fakeVideoRepo struct {
	records map[string]*model.VideoRecord
}

func newFakeVideoRepo() *fakeVideoRepo {
	return &fakeVideoRepo{records: make(map[string]*model.VideoRecord)}
}

func (f *fakeVideoRepo) Create(ctx context.Context, record *model.VideoRecord) error {
	f.records[record.ID] = record
	return nil
}

func (f *fakeVideoRepo) Get(ctx context.Context, id string) (*model.VideoRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, repository.ErrVideoNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeVideoRepo) Update(ctx context.Context, record *model.VideoRecord) error {
	if _, ok := f.records[record.ID]; !ok {
		return repository.ErrVideoNotFound
	}
	clone := *record
	f.records[record.ID] = &clone
	return nil
}

func (f *fakeVideoRepo) ListAll(ctx context.Context) ([]*model.VideoRecord, error) {
	return nil, nil
}

func (f *fakeVideoRepo) ListPendingCallbacks(ctx context.Context) ([]*model.VideoRecord, error) {
	return nil, nil
}

func (f *fakeVideoRepo) TryAcquireForProcessing(ctx context.Context, id string) (bool, *model.VideoRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return false, nil, repository.ErrVideoNotFound
	}
	return true, record, nil
}

type fakeStorage struct {
	bucket, endpoint string
	publishErr       error
	publishedDirs    []string
	publishedPrefix  string
}

func (f *fakeStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return nil
}

func (f *fakeStorage) PublishTree(ctx context.Context, localDir, keyPrefix string, onProgress func(repository.PublishProgress)) error {
	f.publishedDirs = append(f.publishedDirs, localDir)
	f.publishedPrefix = keyPrefix
	if onProgress != nil {
		onProgress(repository.PublishProgress{FilesDone: 11, FilesTotal: 11})
	}
	return f.publishErr
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeStorage) Bucket() string                               { return f.bucket }
func (f *fakeStorage) Endpoint() string                             { return f.endpoint }

type fakeProber struct {
	result ProbeResult
}

func (f *fakeProber) Probe(ctx context.Context, sourcePath string) ProbeResult {
	return f.result
}

type fakeFFmpeg struct {
	runHLSErr    map[Strategy]error
	thumbnailErr error
	mp4Path      string
	mp4Err       error
	calledHLS    []Strategy
}

func (f *fakeFFmpeg) RunHLS(ctx context.Context, strategy Strategy, inputPath, workDir string) error {
	f.calledHLS = append(f.calledHLS, strategy)
	if f.runHLSErr == nil {
		return nil
	}
	return f.runHLSErr[strategy]
}

func (f *fakeFFmpeg) ExtractThumbnail(ctx context.Context, inputPath, workDir string) error {
	return f.thumbnailErr
}

func (f *fakeFFmpeg) EnsureMP4(ctx context.Context, sourcePath, workDir, sourceContainer string) (string, error) {
	return f.mp4Path, f.mp4Err
}

// ObjectStorage's Upload parameter is io.Reader in the real interface; redeclare
// the interface assertion loosely via repository.ObjectStorage to catch drift.
var _ repository.ObjectStorage = (*fakeStorage)(nil)

func newTestJob(repo repository.VideoRepository, storage repository.ObjectStorage, p prober, f ffmpegRunner, cfg JobConfig) *Job {
	return &Job{repo: repo, storage: storage, prober: p, ffmpeg: f, cfg: cfg}
}

func seedProcessingRecord(t *testing.T, repo *fakeVideoRepo, id string) *model.VideoRecord {
	t.Helper()
	record, err := model.NewVideoRecord(id, "movie.mp4")
	if err != nil {
		t.Fatalf("NewVideoRecord() error = %v", err)
	}
	record.Status = model.StatusProcessing
	record.Progress = 10
	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return record
}

func compatibleProbeResult(strategy Strategy) ProbeResult {
	return ProbeResult{
		VideoCodec:      "h264",
		AudioCodec:      "aac",
		VideoProfile:    "main",
		Container:       "mov,mp4,m4a,3gp,3g2,mj2",
		IsHLSCompatible: strategy == StrategyCopy,
		Strategy:        strategy,
	}
}

func TestJob_TranscodeAndUpload_CopySuccess(t *testing.T) {
	repo := newFakeVideoRepo()
	seedProcessingRecord(t, repo, "upload-1")
	storage := &fakeStorage{bucket: "videos", endpoint: "s3.example.com"}
	prober := &fakeProber{result: compatibleProbeResult(StrategyCopy)}
	ffmpeg := &fakeFFmpeg{}

	job := newTestJob(repo, storage, prober, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})
	task := repository.TranscodeTask{UploadID: "upload-1", FilePath: "/src/movie.mp4", Filename: "movie.mp4"}

	if err := job.TranscodeAndUpload(context.Background(), task); err != nil {
		t.Fatalf("TranscodeAndUpload() error = %v", err)
	}

	got, _ := repo.Get(context.Background(), "upload-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if got.StreamURL == "" {
		t.Error("StreamURL was not set")
	}
	if got.ThumbnailURL == "" {
		t.Error("ThumbnailURL was not set despite successful thumbnail extraction")
	}
}

func TestJob_TranscodeAndUpload_AlreadyCompleted_NoOp(t *testing.T) {
	repo := newFakeVideoRepo()
	record := seedProcessingRecord(t, repo, "upload-1")
	record.Status = model.StatusCompleted
	repo.Update(context.Background(), record)
	storage := &fakeStorage{}
	ffmpeg := &fakeFFmpeg{}

	job := newTestJob(repo, storage, &fakeProber{}, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})
	task := repository.TranscodeTask{UploadID: "upload-1"}

	if err := job.TranscodeAndUpload(context.Background(), task); err != nil {
		t.Fatalf("TranscodeAndUpload() error = %v", err)
	}
	if len(ffmpeg.calledHLS) != 0 {
		t.Error("should not invoke ffmpeg for an already-completed record")
	}
}

func TestJob_TranscodeAndUpload_FailedRetry_ClearsErrorAndCompletes(t *testing.T) {
	repo := newFakeVideoRepo()
	record := seedProcessingRecord(t, repo, "upload-1")
	record.Status = model.StatusFailed
	record.Error = "previous attempt failed"
	repo.Update(context.Background(), record)

	storage := &fakeStorage{bucket: "videos", endpoint: "s3.example.com"}
	prober := &fakeProber{result: compatibleProbeResult(StrategyCopy)}
	ffmpeg := &fakeFFmpeg{}
	job := newTestJob(repo, storage, prober, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})

	task := repository.TranscodeTask{UploadID: "upload-1", FilePath: "/src/movie.mp4", Filename: "movie.mp4"}
	if err := job.TranscodeAndUpload(context.Background(), task); err != nil {
		t.Fatalf("TranscodeAndUpload() error = %v", err)
	}

	got, _ := repo.Get(context.Background(), "upload-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %v, want completed after successful retry", got.Status)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want cleared", got.Error)
	}
}

func TestJob_TranscodeAndUpload_FallsBackToReencode(t *testing.T) {
	repo := newFakeVideoRepo()
	seedProcessingRecord(t, repo, "upload-1")
	storage := &fakeStorage{bucket: "videos", endpoint: "s3.example.com"}
	prober := &fakeProber{result: compatibleProbeResult(StrategyCopy)}
	ffmpeg := &fakeFFmpeg{
		runHLSErr: map[Strategy]error{
			StrategyCopy: errors.New("copy failed on malformed stream"),
		},
	}
	job := newTestJob(repo, storage, prober, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})
	task := repository.TranscodeTask{UploadID: "upload-1", FilePath: "/src/movie.mp4", Filename: "movie.mp4"}

	if err := job.TranscodeAndUpload(context.Background(), task); err != nil {
		t.Fatalf("TranscodeAndUpload() error = %v", err)
	}
	if len(ffmpeg.calledHLS) != 2 || ffmpeg.calledHLS[0] != StrategyCopy || ffmpeg.calledHLS[1] != StrategyReencode {
		t.Errorf("calledHLS = %v, want [copy reencode]", ffmpeg.calledHLS)
	}

	got, _ := repo.Get(context.Background(), "upload-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %v, want completed after fallback succeeds", got.Status)
	}
}

func TestJob_TranscodeAndUpload_PermanentHLSFailure_MarksFailed(t *testing.T) {
	repo := newFakeVideoRepo()
	seedProcessingRecord(t, repo, "upload-1")
	storage := &fakeStorage{bucket: "videos", endpoint: "s3.example.com"}
	prober := &fakeProber{result: compatibleProbeResult(StrategySelective)}
	boom := errors.New("ffmpeg crashed")
	ffmpeg := &fakeFFmpeg{
		runHLSErr: map[Strategy]error{
			StrategySelective: boom,
			StrategyReencode:  boom,
		},
	}
	job := newTestJob(repo, storage, prober, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})
	task := repository.TranscodeTask{UploadID: "upload-1", FilePath: "/src/movie.mp4", Filename: "movie.mp4"}

	err := job.TranscodeAndUpload(context.Background(), task)
	if err == nil {
		t.Fatal("expected error when both the original strategy and the reencode fallback fail")
	}

	got, _ := repo.Get(context.Background(), "upload-1")
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %v, want failed", got.Status)
	}
	if got.Error == "" {
		t.Error("Error was not recorded on the failed record")
	}
}

func TestJob_TranscodeAndUpload_ThumbnailFailureIsNonFatal(t *testing.T) {
	repo := newFakeVideoRepo()
	seedProcessingRecord(t, repo, "upload-1")
	storage := &fakeStorage{bucket: "videos", endpoint: "s3.example.com"}
	prober := &fakeProber{result: compatibleProbeResult(StrategyCopy)}
	ffmpeg := &fakeFFmpeg{thumbnailErr: errors.New("no frame at timestamp")}
	job := newTestJob(repo, storage, prober, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})
	task := repository.TranscodeTask{UploadID: "upload-1", FilePath: "/src/movie.mp4", Filename: "movie.mp4"}

	if err := job.TranscodeAndUpload(context.Background(), task); err != nil {
		t.Fatalf("TranscodeAndUpload() error = %v, want nil (thumbnail failures are non-fatal)", err)
	}

	got, _ := repo.Get(context.Background(), "upload-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %v, want completed despite thumbnail failure", got.Status)
	}
	if got.ThumbnailURL != "" {
		t.Error("ThumbnailURL should be empty when extraction failed")
	}
}

func TestJob_TranscodeAndUpload_MP4FailureIsNonFatal(t *testing.T) {
	repo := newFakeVideoRepo()
	seedProcessingRecord(t, repo, "upload-1")
	storage := &fakeStorage{bucket: "videos", endpoint: "s3.example.com"}
	prober := &fakeProber{result: compatibleProbeResult(StrategyCopy)}
	ffmpeg := &fakeFFmpeg{mp4Err: errors.New("mp4 render failed")}
	job := newTestJob(repo, storage, prober, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})
	task := repository.TranscodeTask{UploadID: "upload-1", FilePath: "/src/movie.mp4", Filename: "movie.mp4", UploadToS3: true}

	if err := job.TranscodeAndUpload(context.Background(), task); err != nil {
		t.Fatalf("TranscodeAndUpload() error = %v, want nil (mp4 failures are non-fatal)", err)
	}

	got, _ := repo.Get(context.Background(), "upload-1")
	if got.MP4URL != "" {
		t.Error("MP4URL should be empty when the mp4 render failed")
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %v, want completed despite mp4 failure", got.Status)
	}
}

func TestJob_TranscodeAndUpload_PublishFailure_MarksFailed(t *testing.T) {
	repo := newFakeVideoRepo()
	seedProcessingRecord(t, repo, "upload-1")
	storage := &fakeStorage{bucket: "videos", endpoint: "s3.example.com", publishErr: errors.New("s3 unreachable")}
	prober := &fakeProber{result: compatibleProbeResult(StrategyCopy)}
	ffmpeg := &fakeFFmpeg{}
	job := newTestJob(repo, storage, prober, ffmpeg, JobConfig{WorkDirBase: t.TempDir()})
	task := repository.TranscodeTask{UploadID: "upload-1", FilePath: "/src/movie.mp4", Filename: "movie.mp4"}

	err := job.TranscodeAndUpload(context.Background(), task)
	if err == nil {
		t.Fatal("expected error when publish fails")
	}

	got, _ := repo.Get(context.Background(), "upload-1")
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %v, want failed", got.Status)
	}
	if filepath.Base(storage.publishedPrefix) != "upload-1" {
		t.Errorf("publishedPrefix = %q, want a path ending in upload-1", storage.publishedPrefix)
	}
}
