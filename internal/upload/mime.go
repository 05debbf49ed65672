package upload

import "strings"

// extMimeTypes mirrors original_source/src/fz_cli/upload.py's _guess_mime
// extension table rather than relying on the OS mime database, so the same
// filename maps to the same Content-Type on every platform.
var extMimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".txt":  "text/plain",
}

// SupportedExtensions is the fixed allowlist the batch directory driver
// filters on (spec.md §4.6).
var SupportedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".tiff": true, ".tif": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".csv": true, ".txt": true,
}

// GuessMIME returns the Content-Type for filename by extension, falling
// back to application/octet-stream for anything unrecognized.
func GuessMIME(filename string) string {
	ext := strings.ToLower(extOf(filename))
	if mime, ok := extMimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

func extOf(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}
