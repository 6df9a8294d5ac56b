package usecase

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/vellum-stream/pipeline/internal/domain/model"
)

// MaxDirectUploadBytes is the hard-coded ceiling for the direct upload path,
// independent of the configured resumable-upload ceiling.
const MaxDirectUploadBytes int64 = 200 * 1024 * 1024

// maxDirectUploadLabel is MaxDirectUploadBytes spelled the way the policy is
// documented (200MB, not the byte count), so the oversize error message
// reads the way an operator would describe the ceiling.
const maxDirectUploadLabel = "200MB"

// extensionTypes maps upload-source suffixes to their canonical MIME type.
// Kept independent of the system mime.types database (mime.TypeByExtension)
// so allow-list matching is deterministic across hosts; this is the upload
// side of the same extension-to-content-type idiom the publisher uses for
// rendered artifacts.
var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".m3u8": "application/vnd.apple.mpegurl",
}

// mimeSynonyms maps suffix-derived MIME types that disagree with common
// allow-list spellings onto the canonical form before the allow-list check.
var mimeSynonyms = map[string]string{
	"application/mp4":         "video/mp4",
	"application/x-mpegURL":   "application/vnd.apple.mpegurl",
	"application/x-quicktime": "video/quicktime",
}

// ValidationError describes one failed check, field-scoped so the API can
// report which input was wrong.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is an ordered list of ValidationError, rendered as a
// single human-readable line for the API response.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fieldErr := range e {
		parts[i] = fmt.Sprintf("%s: %s", fieldErr.Field, fieldErr.Message)
	}
	return strings.Join(parts, "; ")
}

// Validator enforces filename/MIME/size policy, run both at session
// creation and again when bytes actually arrive.
type Validator struct {
	allowedTypes      map[string]struct{}
	maxResumableBytes int64
}

// NewValidator builds a Validator from the configured MIME allow-list and
// resumable-upload size ceiling (MAX_FILE_SIZE).
func NewValidator(allowedMIMETypes []string, maxResumableBytes int64) *Validator {
	allowed := make(map[string]struct{}, len(allowedMIMETypes))
	for _, t := range allowedMIMETypes {
		allowed[strings.TrimSpace(t)] = struct{}{}
	}
	return &Validator{
		allowedTypes:      allowed,
		maxResumableBytes: maxResumableBytes,
	}
}

// Validate checks filename, derived MIME type, and size against policy.
// It never returns early: every failing check is collected so the caller
// gets the complete list in one pass.
func (v *Validator) Validate(filename string, size int64, uploadType model.UploadType) ValidationErrors {
	var errs ValidationErrors

	if filename == "" {
		errs = append(errs, ValidationError{Field: "filename", Message: "filename cannot be empty"})
	} else {
		mimeType := deriveMIMEType(filename)
		if mimeType == "" {
			errs = append(errs, ValidationError{Field: "filename", Message: "no MIME type could be derived from filename suffix"})
		} else if _, ok := v.allowedTypes[mimeType]; !ok {
			errs = append(errs, ValidationError{
				Field:   "filename",
				Message: fmt.Sprintf("MIME type %q is not in the allowed list", mimeType),
			})
		}
	}

	if size <= 0 {
		errs = append(errs, ValidationError{Field: "filesize", Message: "filesize must be a positive integer"})
	} else {
		ceiling := v.maxResumableBytes
		ceilingLabel := humanize.Bytes(uint64(ceiling))
		if uploadType == model.UploadDirect {
			ceiling = MaxDirectUploadBytes
			ceilingLabel = maxDirectUploadLabel
		}
		if size > ceiling {
			errs = append(errs, ValidationError{
				Field:   "filesize",
				Message: fmt.Sprintf("filesize %d exceeds the %s ceiling for %s uploads", size, ceilingLabel, uploadType),
			})
		}
	}

	return errs
}

// deriveMIMEType derives a MIME type from filename's suffix, applying the
// synonym table so that e.g. application/mp4 reads as video/mp4.
func deriveMIMEType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return ""
	}

	mimeType, ok := extensionTypes[ext]
	if !ok {
		return ""
	}

	if canonical, ok := mimeSynonyms[mimeType]; ok {
		return canonical
	}
	return mimeType
}
