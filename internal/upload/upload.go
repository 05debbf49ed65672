// Package upload implements the Upload Engine (spec.md §4.5): the
// four-step multipart protocol (init, parallel presigned-URL part PUTs,
// background part acknowledgement, complete), resume, cancellation, and
// wait-for-ready polling.
//
// Grounded on original_source/src/fz_cli/upload.py end to end — its
// worker-pool/report-pool split, per-part retry-with-reread, SIGINT
// escalation, and wait-for-ready loop are all reproduced here using Go's
// goroutines+channels+context in place of Python's ThreadPoolExecutor and
// signal module, per spec.md's Design Notes guidance. The teacher
// has no upload-protocol analog to adapt; its contribution is the overall
// internal-package shape and its io-heavy packages' use of
// context.Context for cancellation.
package upload

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fluidzero/fz-cli/internal/httpengine"
	"github.com/fluidzero/fz-cli/internal/retry"
	"github.com/fluidzero/fz-cli/internal/telemetry"
	"github.com/fluidzero/fz-cli/pkg/models"
)

// Options configures one file's upload.
type Options struct {
	Concurrency   int  // C, bounded upload-pool width, default 5
	RetryAttempts int  // per-part retry budget, default 3
	Resume        bool // attempt to resume an in-progress multipart upload
	WaitReady     bool // poll /api/documents/{id} after complete
}

// ErrAborted is returned when a SIGINT aborts an in-flight upload.
var ErrAborted = fmt.Errorf("upload aborted by interrupt")

// Engine drives uploads for one project through an httpengine.Engine for
// the JSON control-plane calls and a dedicated *http.Client, sized per
// spec.md §4.5's connection-pool rule, for the presigned-URL PUTs
// (which bypass the Engine's auth entirely — they're signed URLs).
type Engine struct {
	api        *httpengine.Engine
	projectID  string
	partClient *http.Client
	opts       Options
}

// New builds an Engine. concurrency/retryAttempts of 0 fall back to
// spec.md's defaults (5, 3).
func New(api *httpengine.Engine, projectID string, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = retry.MaxAttempts
	}
	transport := &http.Transport{
		MaxIdleConns:        opts.Concurrency + 2,
		MaxIdleConnsPerHost: opts.Concurrency,
		MaxConnsPerHost:     opts.Concurrency + 2,
	}
	return &Engine{
		api:        api,
		projectID:  projectID,
		partClient: &http.Client{Transport: transport},
		opts:       opts,
	}
}

// UploadFile runs the full protocol for one local file and returns the
// document the server created.
func (e *Engine) UploadFile(ctx context.Context, path string) (*models.Document, error) {
	ctx, stop := installSignalHandler(ctx)
	defer stop()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	mimeType := GuessMIME(path)

	init, err := e.initUpload(ctx, filepath.Base(path), info.Size(), mimeType)
	if err != nil {
		return nil, err
	}

	presigned := init.PresignedURLs
	if e.opts.Resume && !init.IsSinglePart {
		presigned, err = e.resumeUpload(ctx, init.UploadID, presigned)
		if err != nil {
			telemetry.Warn("upload resume check failed, continuing from scratch: %v", err)
		}
	}

	parts, err := e.uploadParts(ctx, file, init, presigned, mimeType)
	if err != nil {
		e.abortUpload(init.UploadID)
		return nil, err
	}

	doc, err := e.completeUpload(ctx, init.UploadID, parts)
	if err != nil {
		return nil, err
	}

	if e.opts.WaitReady {
		waited, err := e.WaitForReady(ctx, doc.ID)
		if err != nil {
			return doc, err
		}
		return waited, nil
	}
	return doc, nil
}

func (e *Engine) initUpload(ctx context.Context, fileName string, size int64, mimeType string) (*models.UploadInitResponse, error) {
	body := map[string]any{
		"fileName":     fileName,
		"fileSizeBytes": size,
		"mimeType":     mimeType,
		"sourceType":   "cli",
	}
	var out models.UploadInitResponse
	path := fmt.Sprintf("/api/projects/%s/uploads/init", e.projectID)
	if err := e.api.Post(ctx, path, body, &out); err != nil {
		return nil, fmt.Errorf("upload init failed: %w", err)
	}
	return &out, nil
}

func (e *Engine) resumeUpload(ctx context.Context, uploadID string, fallback []models.PresignedURL) ([]models.PresignedURL, error) {
	var status models.UploadStatusResponse
	if err := e.api.Get(ctx, fmt.Sprintf("/api/uploads/%s", uploadID), nil, &status); err != nil {
		return fallback, err
	}
	if status.PartsUploaded <= 0 {
		return fallback, nil
	}
	var resume models.UploadResumeResponse
	if err := e.api.Post(ctx, fmt.Sprintf("/api/uploads/%s/resume", uploadID), nil, &resume); err != nil {
		return fallback, err
	}
	return resume.PresignedURLs, nil
}

func (e *Engine) completeUpload(ctx context.Context, uploadID string, _ []models.UploadedPart) (*models.Document, error) {
	var out models.UploadCompleteResponse
	path := fmt.Sprintf("/api/uploads/%s/complete", uploadID)
	if err := e.api.Post(ctx, path, nil, &out); err != nil {
		return nil, fmt.Errorf("upload complete failed: %w", err)
	}
	return &out.Document, nil
}

func (e *Engine) abortUpload(uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.api.Delete(ctx, fmt.Sprintf("/api/uploads/%s", uploadID), nil); err != nil {
		telemetry.Warn("best-effort upload abort failed: %v", err)
	}
}

// WaitForReady polls /api/documents/{id} every 2s up to 600s for a
// terminal status. Returns the document with models.WaitTimeout as its
// Status if the deadline elapses first.
func (e *Engine) WaitForReady(ctx context.Context, documentID string) (*models.Document, error) {
	deadline := time.Now().Add(600 * time.Second)
	for {
		var doc models.Document
		if err := e.api.Get(ctx, fmt.Sprintf("/api/documents/%s", documentID), nil, &doc); err != nil {
			return nil, err
		}
		switch doc.Status {
		case "ready":
			return &doc, nil
		case "failed":
			telemetry.Warn("document %s failed: %s", documentID, doc.ErrorMessage)
			return &doc, nil
		}
		if time.Now().After(deadline) {
			return &models.Document{ID: documentID, Status: models.WaitTimeout}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func contentMD5(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func partTimeout(sizeBytes int64) time.Duration {
	sizeMB := float64(sizeBytes) / (1024 * 1024)
	seconds := sizeMB * 30
	if seconds < 60 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

func extractETag(resp *http.Response) string {
	etag := resp.Header.Get("ETag")
	return strings.Trim(etag, `"`)
}

// installSignalHandler wires SIGINT into an atomic abort flag carried via
// context: the first interrupt cancels ctx and prints a cancelling
// message; a second interrupt restores the default disposition and
// re-raises the signal for immediate termination, matching
// original_source/upload.py's ctrl_c_count escalation.
func installSignalHandler(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	var count int32
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				n := atomic.AddInt32(&count, 1)
				if n == 1 {
					fmt.Fprintln(os.Stderr, "\nCancelling upload... (press Ctrl-C again to force quit)")
					cancel()
					continue
				}
				signal.Stop(sigCh)
				signal.Reset(os.Interrupt)
				_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
				return
			case <-done:
				return
			}
		}
	}()

	return ctx, func() {
		close(done)
		signal.Stop(sigCh)
		cancel()
	}
}
