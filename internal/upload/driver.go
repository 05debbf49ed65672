package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/fluidzero/fz-cli/pkg/models"
)

var progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

// Result pairs a local path with the outcome of uploading it.
type Result struct {
	Path     string
	Document *models.Document
	Err      error
}

// UploadFiles uploads paths sequentially, each through the full parallel
// part engine, printing a transient per-file progress line. It stops after
// the first non-cancellation error, returning the results gathered so far
// (spec.md §4.5's multi-file driver: "aborts after first non-cancellation
// error; partial successes are returned").
func (e *Engine) UploadFiles(ctx context.Context, paths []string) []Result {
	results := make([]Result, 0, len(paths))

	for i, path := range paths {
		info, statErr := os.Stat(path)
		var sizeLabel string
		if statErr == nil {
			sizeLabel = formatBytes(info.Size())
		}
		printProgressLine(i+1, len(paths), path, sizeLabel)

		doc, err := e.UploadFile(ctx, path)
		results = append(results, Result{Path: path, Document: doc, Err: err})

		clearProgressLine()
		if err != nil {
			if err == ErrAborted || ctx.Err() != nil {
				fmt.Fprintln(os.Stderr, "Upload cancelled.")
			} else {
				fmt.Fprintf(os.Stderr, "Error uploading %s: %v\n", path, err)
			}
			break
		}
	}
	return results
}

func printProgressLine(current, total int, path, sizeLabel string) {
	label := fmt.Sprintf("[%d/%d] Uploading %s", current, total, path)
	if sizeLabel != "" {
		label += fmt.Sprintf(" (%s)", sizeLabel)
	}
	fmt.Fprintf(os.Stderr, "\r%s", progressStyle.Render(label))
}

func clearProgressLine() {
	fmt.Fprint(os.Stderr, "\r\033[K")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
