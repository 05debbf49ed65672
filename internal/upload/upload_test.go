package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidzero/fz-cli/internal/config"
	"github.com/fluidzero/fz-cli/internal/httpengine"
	"github.com/fluidzero/fz-cli/pkg/models"
)

func withConfigDir(t *testing.T) {
	t.Helper()
	t.Setenv("FZ_CONFIG_DIR", t.TempDir())
	_ = config.EnsureDirectories()
}

// newTestFile writes content to a temp file and returns its path.
func newTestFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, content, 0600))
	return path
}

func TestUploadFile_SinglePartEndToEnd(t *testing.T) {
	withConfigDir(t)

	content := []byte("hello fluidzero upload engine")
	path := newTestFile(t, content)

	var mu sync.Mutex
	var partsReported []int
	var completeCalled bool

	var apiServer, s3Server *httptest.Server
	apiServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/token":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
		case r.URL.Path == "/api/projects/proj-1/uploads/init":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"uploadId":      "up-1",
				"partSizeBytes": int64(len(content)),
				"totalParts":    1,
				"isSinglePart":  true,
				"presignedUrls": []map[string]any{{"partNumber": 1, "url": s3Server.URL + "/part1"}},
			})
		case r.URL.Path == "/api/uploads/up-1/parts":
			var report map[string]any
			_ = json.NewDecoder(r.Body).Decode(&report)
			mu.Lock()
			partsReported = append(partsReported, int(report["partNumber"].(float64)))
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/api/uploads/up-1/complete":
			mu.Lock()
			completeCalled = true
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"document": map[string]any{"id": "doc-1", "status": "processing"},
			})
		default:
			t.Errorf("unexpected API path: %s", r.URL.Path)
		}
	}))
	defer apiServer.Close()

	s3Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, contentMD5(content), r.Header.Get("Content-MD5"))
		assert.Equal(t, content, body)
		w.Header().Set("ETag", `"etag-123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer s3Server.Close()

	t.Setenv("FZ_CLIENT_ID", "id-1")
	t.Setenv("FZ_CLIENT_SECRET", "secret-1")

	api := httpengine.New(apiServer.URL, "")
	engine := New(api, "proj-1", Options{Concurrency: 2, RetryAttempts: 2})

	doc, err := engine.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, completeCalled, "expected complete endpoint to be called")
	assert.Equal(t, []int{1}, partsReported)
}

func TestUploadOnePart_RetriesOnFailureThenSucceeds(t *testing.T) {
	withConfigDir(t)

	content := []byte("retry me please")
	path := newTestFile(t, content)
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	attempts := 0
	s3Server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", `"final-etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer s3Server.Close()

	api := httpengine.New("https://unused.example.com", "")
	engine := New(api, "proj-1", Options{Concurrency: 1, RetryAttempts: 3})

	init := testInit(int64(len(content)))
	part := init.PresignedURLs[0]
	part.URL = s3Server.URL + "/part1"

	uploaded, err := engine.uploadOnePart(context.Background(), file, init, part, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "final-etag", uploaded.ETag)
	assert.GreaterOrEqual(t, attempts, 2)
}

func testInit(size int64) *models.UploadInitResponse {
	return &models.UploadInitResponse{
		UploadID:      "up-1",
		PartSizeBytes: size,
		TotalParts:    1,
		IsSinglePart:  true,
		PresignedURLs: []models.PresignedURL{{PartNumber: 1, URL: "http://placeholder"}},
	}
}
