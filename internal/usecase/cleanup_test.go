package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vellum-stream/pipeline/internal/domain/repository"
)

func TestCleanupService_Cleanup_RemovesAllArtifacts(t *testing.T) {
	uploadDir := t.TempDir()
	workBase := t.TempDir()

	sourcePath := filepath.Join(uploadDir, "upload-1")
	sidecarPath := sourcePath + ".info"
	workDir := filepath.Join(workBase, "upload-1")

	mustWrite(t, sourcePath, "video bytes")
	mustWrite(t, sidecarPath, `{"ID":"upload-1"}`)
	if err := os.MkdirAll(filepath.Join(workDir, "segments"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	svc := NewCleanupService(CleanupConfig{WorkDirBase: workBase})
	svc.Cleanup(context.Background(), repository.TranscodeTask{UploadID: "upload-1", FilePath: sourcePath})

	for _, path := range []string{sourcePath, sidecarPath, workDir} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed, stat err = %v", path, err)
		}
	}
}

func TestCleanupService_Cleanup_MissingFilesAreNotFatal(t *testing.T) {
	svc := NewCleanupService(CleanupConfig{WorkDirBase: t.TempDir()})
	// Nothing on disk at all: Cleanup must return (not panic/hang) regardless.
	svc.Cleanup(context.Background(), repository.TranscodeTask{UploadID: "ghost", FilePath: "/nonexistent/path/ghost"})
}

func TestCleanupService_Cleanup_NoWorkDirBase_SkipsWorkDirRemoval(t *testing.T) {
	uploadDir := t.TempDir()
	sourcePath := filepath.Join(uploadDir, "upload-2")
	mustWrite(t, sourcePath, "video bytes")

	svc := NewCleanupService(CleanupConfig{})
	svc.Cleanup(context.Background(), repository.TranscodeTask{UploadID: "upload-2", FilePath: sourcePath})

	if _, err := os.Stat(sourcePath); !os.IsNotExist(err) {
		t.Errorf("expected source file to be removed, stat err = %v", err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
