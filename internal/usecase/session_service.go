package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
)

// SessionExpiresInSeconds is the advisory session lifetime returned to the
// caller. The core never actively expires a session; late bytes for an
// uploading record are still accepted.
const SessionExpiresInSeconds = 3600

var s3PathPattern = regexp.MustCompile(`^[A-Za-z0-9/_-]+$`)

// ErrInvalidS3Path is returned when s3Path fails the prefix character check.
var ErrInvalidS3Path = errors.New("s3Path must match [A-Za-z0-9/_-]+ after trimming slashes")

// CreateSessionInput is the request body of POST /api/v1/video/create.
type CreateSessionInput struct {
	Filename    string
	Filesize    int64
	Type        string // raw request value: "", "tus", "resumable", or "direct"
	CallbackURL string
	S3Path      string
	UploadToS3  bool
}

// CreateSessionOutput is the response body of POST /api/v1/video/create.
type CreateSessionOutput struct {
	UploadID  string
	UploadURL string
	VideoURL  string
	ExpiresIn int
	MP4URL    string
}

// SessionService mints upload sessions: it runs C2, inserts the VideoRecord,
// and computes the prospective object-store URLs.
type SessionService interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*CreateSessionOutput, error)
}

// SessionServiceConfig carries the URL-building parameters needed to
// construct uploadUrl/videoUrl without the service depending on the HTTP
// router directly.
type SessionServiceConfig struct {
	VellumHost string // public base URL, e.g. https://api.example.com
	Bucket     string
	Endpoint   string
}

type sessionService struct {
	repo      repository.VideoRepository
	validator *Validator
	cfg       SessionServiceConfig
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo repository.VideoRepository, validator *Validator, cfg SessionServiceConfig) SessionService {
	return &sessionService{repo: repo, validator: validator, cfg: cfg}
}

// CreateSession validates the request, mints a fresh uploadId, persists a
// VideoRecord in status uploading, and returns the session response.
func (s *sessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*CreateSessionOutput, error) {
	uploadType := parseUploadType(input.Type)
	if !uploadType.IsValid() {
		return nil, ValidationErrors{{Field: "type", Message: fmt.Sprintf("uploadType %q must be one of resumable, direct", input.Type)}}
	}

	if errs := s.validator.Validate(input.Filename, input.Filesize, uploadType); len(errs) > 0 {
		return nil, errs
	}

	trimmedS3Path := trimSlashesFor(input.S3Path)
	if trimmedS3Path != "" && !s3PathPattern.MatchString(trimmedS3Path) {
		return nil, ErrInvalidS3Path
	}

	uploadID := uuid.NewString()

	record, err := model.NewVideoRecord(uploadID, input.Filename)
	if err != nil {
		return nil, err
	}
	record.CallbackURL = input.CallbackURL
	record.S3Path = input.S3Path
	record.UploadToS3 = input.UploadToS3
	record.UploadType = uploadType
	if input.CallbackURL != "" {
		record.CallbackStatus = model.CallbackPending
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create video record: %w", err)
	}

	prefix := model.KeyPrefix(input.S3Path, uploadID)

	out := &CreateSessionOutput{
		UploadID:  uploadID,
		UploadURL: s.buildUploadURL(uploadID, uploadType),
		VideoURL:  fmt.Sprintf("%s.%s/%s/index.m3u8", s.cfg.Bucket, s.cfg.Endpoint, prefix),
		ExpiresIn: SessionExpiresInSeconds,
	}
	if input.UploadToS3 {
		out.MP4URL = fmt.Sprintf("%s.%s/%s/video.mp4", s.cfg.Bucket, s.cfg.Endpoint, prefix)
	}

	return out, nil
}

func (s *sessionService) buildUploadURL(uploadID string, uploadType model.UploadType) string {
	host := strings.TrimRight(s.cfg.VellumHost, "/")
	if uploadType == model.UploadDirect {
		return fmt.Sprintf("%s/api/v1/video/%s/upload", host, uploadID)
	}
	return fmt.Sprintf("%s/api/v1/tus/files/%s", host, uploadID)
}

// parseUploadType accepts the raw request "type" value, defaulting to
// resumable and treating "tus" as its alias.
func parseUploadType(raw string) model.UploadType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "tus", "resumable":
		return model.UploadResumable
	case "direct":
		return model.UploadDirect
	default:
		return model.UploadType(raw)
	}
}

func trimSlashesFor(s string) string {
	return strings.Trim(s, "/")
}
