// Package ingress wires the resumable-upload protocol library to the
// pipeline's domain logic: it translates tusd's create/finish hooks into
// calls against usecase.IngressService.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tus/tusd/v2/pkg/filestore"
	"github.com/tus/tusd/v2/pkg/handler"

	"github.com/vellum-stream/pipeline/internal/usecase"
)

// TUSHandlerConfig configures the resumable-upload handler.
type TUSHandlerConfig struct {
	// StoreDir is where tusd persists in-flight chunked uploads; this is
	// UPLOAD_PATH.
	StoreDir string
	// BasePath must match the route the handler is mounted under.
	BasePath string
}

// NewTUSHandler builds a tusd handler.Handler wired to ingress, with
// Config.NotifyCompleteUploads enabled so the caller can drain
// Handler.CompleteUploads via DrainCompleteUploads.
func NewTUSHandler(cfg TUSHandlerConfig, ingress *usecase.IngressService) (*handler.Handler, error) {
	store := filestore.FileStore{Path: cfg.StoreDir}
	composer := handler.NewStoreComposer()
	store.UseIn(composer)

	tusConfig := handler.Config{
		BasePath:              cfg.BasePath,
		StoreComposer:         composer,
		NotifyCompleteUploads: true,
		PreUploadCreateCallback: func(hook handler.HookEvent) (handler.HTTPResponse, handler.FileInfoChanges, error) {
			return preUploadCreate(ingress, hook)
		},
	}

	h, err := handler.NewHandler(tusConfig)
	if err != nil {
		return nil, fmt.Errorf("construct tus handler: %w", err)
	}

	return h, nil
}

// preUploadCreate implements the "on create" hook from spec.md §4.4: the
// uploadId is carried as TUS upload metadata (set by the client per the
// session response), and is used both to validate the referenced record
// and to force tusd to key the upload by that id rather than one it would
// otherwise generate (see DESIGN.md's decision on this ambiguity).
func preUploadCreate(ingress *usecase.IngressService, hook handler.HookEvent) (handler.HTTPResponse, handler.FileInfoChanges, error) {
	uploadID, ok := hook.Upload.MetaData["uploadId"]
	if !ok || uploadID == "" {
		return handler.HTTPResponse{}, handler.FileInfoChanges{}, fmt.Errorf("missing uploadId metadata on tus upload creation")
	}

	if _, err := ingress.OnUploadCreate(context.Background(), uploadID, hook.Upload.Size); err != nil {
		return handler.HTTPResponse{}, handler.FileInfoChanges{}, err
	}

	return handler.HTTPResponse{}, handler.FileInfoChanges{ID: uploadID}, nil
}

// DrainCompleteUploads runs until ctx is cancelled, feeding each finished
// upload through the "on finish" hook. Run this in its own goroutine
// alongside the HTTP server.
func DrainCompleteUploads(ctx context.Context, h *handler.Handler, storeDir string, ingress *usecase.IngressService) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.CompleteUploads:
			if !ok {
				return
			}
			filePath := filepath.Join(storeDir, event.Upload.ID)
			if err := ingress.OnUploadComplete(context.Background(), event.Upload.ID, filePath); err != nil {
				slog.Error("tus upload complete hook failed",
					"upload_id", event.Upload.ID,
					"error", err,
				)
			}
		}
	}
}
