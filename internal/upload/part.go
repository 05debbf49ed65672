package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/fluidzero/fz-cli/internal/retry"
	"github.com/fluidzero/fz-cli/internal/telemetry"
	"github.com/fluidzero/fz-cli/pkg/models"
)

// uploadParts runs the bounded upload pool (width e.opts.Concurrency) over
// every presigned URL and the bounded report pool (width ≤ 2) that
// acknowledges each completed part in the background, per spec.md §4.5
// steps 2-3.
func (e *Engine) uploadParts(ctx context.Context, file *os.File, init *models.UploadInitResponse, presigned []models.PresignedURL, mimeType string) ([]models.UploadedPart, error) {
	reportWidth := 2
	if len(presigned) < reportWidth {
		reportWidth = len(presigned)
	}
	reports := make(chan models.PartReport, len(presigned))
	var reportWG sync.WaitGroup
	for i := 0; i < reportWidth; i++ {
		reportWG.Add(1)
		go e.reportWorker(ctx, init.UploadID, reports, &reportWG)
	}

	sem := make(chan struct{}, e.opts.Concurrency)
	var uploadWG sync.WaitGroup
	results := make([]models.UploadedPart, len(presigned))
	errs := make([]error, len(presigned))

	for i, p := range presigned {
		uploadWG.Add(1)
		sem <- struct{}{}
		go func(idx int, part models.PresignedURL) {
			defer uploadWG.Done()
			defer func() { <-sem }()

			uploaded, err := e.uploadOnePart(ctx, file, init, part, mimeType)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = uploaded
			reports <- models.PartReport{PartNumber: uploaded.PartNumber, ETag: uploaded.ETag, SizeBytes: uploaded.Size}
		}(i, p)
	}

	uploadWG.Wait()
	close(reports)
	reportWG.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, ErrAborted
	}
	return results, nil
}

// uploadOnePart reads the part's byte range, retries on failure re-reading
// from disk each attempt (no buffer survives a retry), and PUTs to the
// presigned URL.
func (e *Engine) uploadOnePart(ctx context.Context, file *os.File, init *models.UploadInitResponse, part models.PresignedURL, mimeType string) (models.UploadedPart, error) {
	offset := int64(part.PartNumber-1) * init.PartSizeBytes
	size := init.PartSizeBytes
	if remaining := fileSize(file) - offset; remaining < size {
		size = remaining
	}
	if size < 0 {
		size = 0
	}

	var lastErr error
	for attempt := 0; attempt < e.opts.RetryAttempts; attempt++ {
		if ctx.Err() != nil {
			return models.UploadedPart{}, ErrAborted
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return models.UploadedPart{}, ErrAborted
			case <-time.After(retry.Delay(attempt - 1)):
			}
		}

		buf := make([]byte, size)
		if _, err := file.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			lastErr = fmt.Errorf("reading part %d: %w", part.PartNumber, err)
			continue
		}

		uploaded, err := e.putPart(ctx, part, buf, init.IsSinglePart, mimeType)
		if err == nil {
			return uploaded, nil
		}
		lastErr = err
		telemetry.Warn("part %d attempt %d failed: %v", part.PartNumber, attempt+1, err)
	}
	return models.UploadedPart{}, fmt.Errorf("part %d failed after %d attempts: %w", part.PartNumber, e.opts.RetryAttempts, lastErr)
}

func (e *Engine) putPart(ctx context.Context, part models.PresignedURL, data []byte, isSinglePart bool, mimeType string) (models.UploadedPart, error) {
	timeout := partTimeout(int64(len(data)))
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, part.URL, bytes.NewReader(data))
	if err != nil {
		return models.UploadedPart{}, err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-MD5", contentMD5(data))
	if isSinglePart {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := e.partClient.Do(req)
	if err != nil {
		return models.UploadedPart{}, fmt.Errorf("PUT part %d: %w", part.PartNumber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return models.UploadedPart{}, fmt.Errorf("PUT part %d: status %d", part.PartNumber, resp.StatusCode)
	}

	return models.UploadedPart{
		PartNumber: part.PartNumber,
		ETag:       extractETag(resp),
		Size:       int64(len(data)),
	}, nil
}

// reportWorker drains reports and POSTs each acknowledgement; failures are
// logged but never fail the overall upload (spec.md §4.5 step 3).
func (e *Engine) reportWorker(ctx context.Context, uploadID string, reports <-chan models.PartReport, wg *sync.WaitGroup) {
	defer wg.Done()
	for r := range reports {
		e.reportPart(ctx, uploadID, r)
	}
}

func (e *Engine) reportPart(ctx context.Context, uploadID string, report models.PartReport) {
	path := fmt.Sprintf("/api/uploads/%s/parts", uploadID)
	if err := e.api.Post(ctx, path, report, nil); err != nil {
		telemetry.Warn("reporting part %d failed (non-fatal): %v", report.PartNumber, err)
	}
}

func fileSize(f *os.File) int64 {
	info, err := f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}
