package model

import (
	"errors"
	"time"
)

// Status represents the processing state of a video record.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid status transitions:
// uploading -> processing -> {completed | failed}
// failed -> processing (explicit retry)
var validTransitions = map[Status][]Status{
	StatusUploading:  {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {StatusProcessing},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// CallbackStatus represents the outcome state of webhook delivery.
type CallbackStatus string

const (
	CallbackPending   CallbackStatus = "pending"
	CallbackCompleted CallbackStatus = "completed"
	CallbackFailed    CallbackStatus = "failed"
)

func (s CallbackStatus) String() string {
	return string(s)
}

// UploadType is a routing hint distinguishing the two upload ingress paths.
type UploadType string

const (
	UploadResumable UploadType = "resumable"
	UploadDirect    UploadType = "direct"
)

func (t UploadType) IsValid() bool {
	return t == UploadResumable || t == UploadDirect
}

// MaxCallbackAttempts bounds callbackRetryCount (policy: 4).
const MaxCallbackAttempts = 4

// VideoRecord is the sole persistent entity of the pipeline, keyed by UploadID.
type VideoRecord struct {
	ID           string
	Filename     string
	Status       Status
	Progress     int
	StreamURL    string
	ThumbnailURL string
	MP4URL       string
	CreatedAt    time.Time
	CompletedAt  *time.Time
	Error        string
	Packager     string

	CallbackURL         string
	CallbackStatus      CallbackStatus
	CallbackRetryCount  int
	CallbackLastAttempt *time.Time

	S3Path     string
	UploadToS3 bool
	UploadType UploadType
}

var (
	ErrEmptyFilename     = errors.New("filename cannot be empty")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRetryExhausted    = errors.New("callback retry count exceeds policy maximum")
)

// NewVideoRecord creates a new VideoRecord with status uploading and progress 0.
func NewVideoRecord(id, filename string) (*VideoRecord, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}

	return &VideoRecord{
		ID:             id,
		Filename:       filename,
		Status:         StatusUploading,
		Progress:       0,
		CreatedAt:      time.Now(),
		Packager:       "ffmpeg",
		CallbackStatus: CallbackPending,
		UploadType:     UploadResumable,
	}, nil
}

// TransitionTo attempts to change the record status, enforcing §3's invariants.
func (v *VideoRecord) TransitionTo(next Status) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !v.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	v.Status = next
	if next == StatusCompleted {
		now := time.Now()
		v.CompletedAt = &now
	}
	return nil
}

// IsCompleted returns true if the video has finished processing successfully.
func (v *VideoRecord) IsCompleted() bool {
	return v.Status == StatusCompleted
}

// IsFailed returns true if video processing failed.
func (v *VideoRecord) IsFailed() bool {
	return v.Status == StatusFailed
}

// RecordCallbackAttempt applies the outcome rules from §4.9 for a single
// webhook attempt. success=true means the endpoint answered HTTP 200.
func (v *VideoRecord) RecordCallbackAttempt(success bool) {
	now := time.Now()
	v.CallbackLastAttempt = &now

	if success {
		v.CallbackStatus = CallbackCompleted
		return
	}

	v.CallbackRetryCount++
	if v.CallbackRetryCount >= MaxCallbackAttempts {
		v.CallbackStatus = CallbackFailed
	}
}

// EligibleForCallback reports whether the sweeper should attempt delivery.
func (v *VideoRecord) EligibleForCallback() bool {
	return v.CallbackURL != "" &&
		v.CallbackStatus == CallbackPending &&
		v.CallbackRetryCount < MaxCallbackAttempts &&
		v.Status == StatusCompleted
}

// KeyPrefix computes the object-store key prefix for this record, per §4.3's
// prefix rule: trim(s3Path)+"/"+id, or just id when s3Path is absent.
func (v *VideoRecord) KeyPrefix() string {
	return KeyPrefix(v.S3Path, v.ID)
}

// KeyPrefix is the free function form, shared by the session manager (which
// computes the prospective URL before a record exists) and the transcoder
// (which computes the actual publish prefix) so both sides of the
// key-prefix round-trip property use one implementation.
func KeyPrefix(s3Path, id string) string {
	trimmed := trimSlashes(s3Path)
	if trimmed == "" {
		return id
	}
	return trimmed + "/" + id
}

func trimSlashes(s string) string {
	start := 0
	end := len(s)
	for start < end && s[start] == '/' {
		start++
	}
	for end > start && s[end-1] == '/' {
		end--
	}
	return s[start:end]
}
