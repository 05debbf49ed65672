package runpoller

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fluidzero/fz-cli/internal/upload"
	"github.com/fluidzero/fz-cli/pkg/models"
)

// BatchResult summarizes one batch's run.
type BatchResult struct {
	Files   []string
	Run     *models.Run
	Results []map[string]any
	Err     error
}

// RunBatch walks dir, selects files in upload.SupportedExtensions,
// partitions them into batches of batchSize, and for each batch runs
// upload→create→wait→collect. Results stream to jsonlPath as newline-
// delimited JSON if given, else accumulate in memory and appear in the
// returned []BatchResult. Stops and returns what's completed so far on
// the first error.
func (p *Poller) RunBatch(ctx context.Context, uploader *upload.Engine, dir string, batchSize int, payload models.RunPayload, jsonlPath string) ([]BatchResult, error) {
	files, err := discoverSupportedFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported files found under %s", dir)
	}

	var jsonlFile *os.File
	if jsonlPath != "" {
		jsonlFile, err = os.Create(jsonlPath)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", jsonlPath, err)
		}
		defer jsonlFile.Close()
	}

	var results []BatchResult
	for _, batch := range partition(files, batchSize) {
		br := BatchResult{Files: batch}

		uploadResults := uploader.UploadFiles(ctx, batch)
		var docIDs []string
		for _, ur := range uploadResults {
			if ur.Err != nil {
				br.Err = ur.Err
				results = append(results, br)
				return results, br.Err
			}
			docIDs = append(docIDs, ur.Document.ID)
		}

		runPayload := payload
		if runPayload.InputParameters == nil {
			runPayload.InputParameters = map[string]any{}
		}
		runPayload.InputParameters["documentIds"] = docIDs

		run, err := p.Create(ctx, runPayload)
		if err != nil {
			br.Err = err
			results = append(results, br)
			return results, err
		}

		finalRun, waitErr := p.Wait(ctx, run.ID)
		br.Run = finalRun
		if waitErr != nil && waitErr != ErrInterrupted {
			br.Err = waitErr
			results = append(results, br)
			return results, waitErr
		}

		items, err := p.CollectResults(ctx, run.ID)
		if err != nil {
			br.Err = err
			results = append(results, br)
			return results, err
		}
		br.Results = items

		if jsonlFile != nil {
			for _, item := range items {
				line, err := json.Marshal(item)
				if err != nil {
					continue
				}
				jsonlFile.Write(line)
				jsonlFile.Write([]byte("\n"))
			}
		}

		results = append(results, br)
		if waitErr == ErrInterrupted {
			return results, waitErr
		}
	}
	return results, nil
}

func discoverSupportedFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if upload.SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func partition(files []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = len(files)
		if batchSize == 0 {
			batchSize = 1
		}
	}
	var batches [][]string
	for i := 0; i < len(files); i += batchSize {
		end := i + batchSize
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[i:end])
	}
	return batches
}
