package models

// PresignedURL is one ordered (partNumber, url) pair returned by the
// upload-init or upload-resume endpoints.
type PresignedURL struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

// UploadInitResponse is the response to POST .../uploads/init.
type UploadInitResponse struct {
	UploadID      string         `json:"uploadId"`
	PartSizeBytes int64          `json:"partSizeBytes"`
	TotalParts    int            `json:"totalParts"`
	PresignedURLs []PresignedURL `json:"presignedUrls"`
	IsSinglePart  bool           `json:"isSinglePart"`
}

// UploadStatusResponse is the response to GET .../uploads/{id}, used to
// decide whether a resume actually has anything to skip.
type UploadStatusResponse struct {
	PartsUploaded int `json:"partsUploaded"`
}

// UploadResumeResponse carries fresh presigned URLs for the parts that
// still need uploading.
type UploadResumeResponse struct {
	PresignedURLs []PresignedURL `json:"presignedUrls"`
}

// UploadCompleteResponse wraps the document created by a finished upload.
type UploadCompleteResponse struct {
	Document Document `json:"document"`
}

// Document is the remote document record an upload produces, polled by
// wait-for-ready.
type Document struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// UploadedPart is a completed part: its number, the ETag the object store
// returned, and the bytes actually written.
type UploadedPart struct {
	PartNumber int
	ETag       string
	Size       int64
}

// PartReport is the body POSTed to the part-acknowledgement endpoint.
type PartReport struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// WaitTimeout is the sentinel document status returned when wait-for-ready
// exceeds its deadline without observing a terminal document status.
const WaitTimeout = "timeout"
