package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"askhc/handler/http/api"
	"askhc/src/core/chat"
	"askhc/src/core/document"
	"askhc/src/core/system"
	"askhc/src/infrastructure/job"
)

type fakeChat struct {
	lastAsk     chat.AskRequest
	lastSession string
	cleared     bool
}

func (f *fakeChat) Ask(ctx context.Context, req chat.AskRequest) *chat.AskResponse {
	f.lastAsk = req
	return &chat.AskResponse{Answer: "42", Status: chat.StatusSuccess}
}

func (f *fakeChat) History(ctx context.Context, session string) (*chat.HistoryResponse, error) {
	f.lastSession = session
	return &chat.HistoryResponse{History: []chat.Message{}, Count: 0}, nil
}

func (f *fakeChat) ClearHistory(ctx context.Context, session string) error {
	f.lastSession = session
	f.cleared = true
	return nil
}

func (f *fakeChat) Stats(ctx context.Context, session string) (*chat.Stats, error) {
	return &chat.Stats{DocumentsIndexed: 3, Status: chat.StatsReady}, nil
}

type fakeDocs struct {
	uploaded []string
	err      error
}

func (f *fakeDocs) Upload(ctx context.Context, name string, data []byte) (*document.UploadResult, error) {
	if !document.IsSupported(name) {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFileType, document.Extension(name))
	}
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = append(f.uploaded, name)
	return &document.UploadResult{Filename: name, ChunksCreated: 2, TotalDocuments: 2}, nil
}

func (f *fakeDocs) UploadMany(ctx context.Context, files []document.File) (*document.BatchUploadResult, error) {
	res := &document.BatchUploadResult{}
	for _, file := range files {
		f.uploaded = append(f.uploaded, file.Name)
		res.Results = append(res.Results, document.FileResult{Filename: file.Name, Status: document.StatusSuccess})
	}
	return res, nil
}

func (f *fakeDocs) List(ctx context.Context) (*document.ListResult, error) {
	return &document.ListResult{Documents: []document.FileEntry{{Filename: "a.txt"}}, Count: 1}, nil
}

func (f *fakeDocs) Delete(ctx context.Context, name string) error {
	if name != "a.txt" {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, name)
	}
	return nil
}

func (f *fakeDocs) Clear(ctx context.Context) (int, error) {
	return 0, f.err
}

func (f *fakeDocs) Reindex(ctx context.Context) (*document.LoadResult, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return &document.LoadResult{Files: 1, TotalChunks: 4}, 4, nil
}

type fakeJobs struct{}

func (fakeJobs) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*job.Job, error) {
	return &job.Job{ID: 77, TaskType: taskType, Status: job.JobStatusPending}, nil
}

func (fakeJobs) GetJob(ctx context.Context, id int64) (*job.Job, error) {
	if id != 77 {
		return nil, job.ErrJobNotFound
	}
	return &job.Job{ID: 77, Status: job.JobStatusCompleted}, nil
}

type fakeHealth struct{}

func (fakeHealth) CheckHealth(ctx context.Context) *system.HealthStatus {
	return &system.HealthStatus{Status: system.StatusHealthy, AppName: "AskHC", Version: "1.0.0"}
}

func newRouter(chatSvc api.ChatService, docs api.DocumentService, jobs api.JobService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(api.CORS([]string{"http://localhost:3000"}))
	api.NewHandler(chatSvc, docs, jobs, fakeHealth{}, 1<<20).RegisterRoutes(r)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, field string, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("some text"))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return resp.Code
}

func TestAsk(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantSources bool
	}{
		{"sources by default", `{"question":"what?"}`, http.StatusOK, true},
		{"sources off", `{"question":"what?","include_sources":false}`, http.StatusOK, false},
		{"missing question", `{}`, http.StatusBadRequest, false},
		{"too long", `{"question":"` + strings.Repeat("x", 1001) + `"}`, http.StatusBadRequest, false},
		{"not json", `question`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeChat{}
			r := newRouter(fc, &fakeDocs{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/chat/ask", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := do(r, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if w.Code != http.StatusOK {
				if code := errorCode(t, w); code != "BAD_REQUEST" {
					t.Errorf("code = %s, want BAD_REQUEST", code)
				}
				return
			}
			if fc.lastAsk.IncludeSources != tt.wantSources {
				t.Errorf("IncludeSources = %v, want %v", fc.lastAsk.IncludeSources, tt.wantSources)
			}
		})
	}
}

func TestHistoryAndStats(t *testing.T) {
	fc := &fakeChat{}
	r := newRouter(fc, &fakeDocs{}, nil)

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/chat/history?session_id=s1", nil))
	if w.Code != http.StatusOK || fc.lastSession != "s1" {
		t.Errorf("GET history = %d, session %q", w.Code, fc.lastSession)
	}

	w = do(r, httptest.NewRequest(http.MethodDelete, "/api/chat/history", nil))
	if w.Code != http.StatusOK || !fc.cleared {
		t.Errorf("DELETE history = %d, cleared %v", w.Code, fc.cleared)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/chat/stats", nil))
	var stats chat.Stats
	json.Unmarshal(w.Body.Bytes(), &stats)
	if w.Code != http.StatusOK || stats.DocumentsIndexed != 3 || stats.Status != chat.StatsReady {
		t.Errorf("GET stats = %d %+v", w.Code, stats)
	}
}

func TestUploadDocument(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		filename   string
		docErr     error
		wantStatus int
		wantCode   string
	}{
		{"text file", "file", "notes.txt", nil, http.StatusOK, ""},
		{"unsupported", "file", "image.png", nil, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
		{"wrong field", "upload", "notes.txt", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"indexing fails", "file", "notes.txt", errors.New("embedding failed"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeChat{}, &fakeDocs{err: tt.docErr}, nil)
			body, ct := multipartBody(t, tt.field, tt.filename)
			req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
			req.Header.Set("Content-Type", ct)

			w := do(r, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, w); code != tt.wantCode {
					t.Errorf("code = %s, want %s", code, tt.wantCode)
				}
			}
		})
	}
}

func TestUploadMultiple(t *testing.T) {
	docs := &fakeDocs{}
	r := newRouter(&fakeChat{}, docs, nil)
	body, ct := multipartBody(t, "files", "a.txt", "b.md")
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload-multiple", body)
	req.Header.Set("Content-Type", ct)

	w := do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if len(docs.uploaded) != 2 {
		t.Errorf("uploaded = %v, want 2 files", docs.uploaded)
	}
}

func TestDocumentRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		jobs       api.JobService
		wantStatus int
		wantCode   string
	}{
		{"list", http.MethodGet, "/api/documents/list", nil, http.StatusOK, ""},
		{"delete", http.MethodDelete, "/api/documents/files/a.txt", nil, http.StatusOK, ""},
		{"delete missing", http.MethodDelete, "/api/documents/files/zzz.txt", nil, http.StatusNotFound, "NOT_FOUND"},
		{"clear", http.MethodDelete, "/api/documents/clear", nil, http.StatusOK, ""},
		{"reindex", http.MethodPost, "/api/documents/reindex", nil, http.StatusOK, ""},
		{"reindex async disabled", http.MethodPost, "/api/documents/reindex?async=true", nil, http.StatusServiceUnavailable, "JOBS_DISABLED"},
		{"reindex async", http.MethodPost, "/api/documents/reindex?async=true", fakeJobs{}, http.StatusAccepted, ""},
		{"job", http.MethodGet, "/api/jobs/77", fakeJobs{}, http.StatusOK, ""},
		{"job unknown", http.MethodGet, "/api/jobs/78", fakeJobs{}, http.StatusNotFound, "NOT_FOUND"},
		{"job bad id", http.MethodGet, "/api/jobs/abc", fakeJobs{}, http.StatusNotFound, "NOT_FOUND"},
		{"job disabled", http.MethodGet, "/api/jobs/77", nil, http.StatusServiceUnavailable, "JOBS_DISABLED"},
		{"health", http.MethodGet, "/health", nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeChat{}, &fakeDocs{}, tt.jobs)
			w := do(r, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, w); code != tt.wantCode {
					t.Errorf("code = %s, want %s", code, tt.wantCode)
				}
			}
		})
	}
}

func TestReindexAsyncReturnsJobID(t *testing.T) {
	r := newRouter(&fakeChat{}, &fakeDocs{}, fakeJobs{})
	w := do(r, httptest.NewRequest(http.MethodPost, "/api/documents/reindex?async=true", nil))

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["job_id"] != "77" || resp["status"] != string(job.JobStatusPending) {
		t.Errorf("response = %v", resp)
	}
}

func TestCORS(t *testing.T) {
	r := newRouter(&fakeChat{}, &fakeDocs{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	w := do(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestUploadOverLimit(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		field string
	}{
		{name: "single", path: "/api/documents/upload", field: "file"},
		{name: "multiple", path: "/api/documents/upload-multiple", field: "files"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := &fakeDocs{}
			r := newRouter(&fakeChat{}, docs, nil)

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, err := mw.CreateFormFile(tt.field, "big.txt")
			if err != nil {
				t.Fatal(err)
			}
			fw.Write(bytes.Repeat([]byte("a"), 2<<20))
			mw.Close()

			req := httptest.NewRequest(http.MethodPost, tt.path, &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := do(r, req)
			if w.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("status = %d, want %d (%s)", w.Code, http.StatusRequestEntityTooLarge, w.Body.String())
			}
			if code := errorCode(t, w); code != "PAYLOAD_TOO_LARGE" {
				t.Errorf("code = %s, want PAYLOAD_TOO_LARGE", code)
			}
			if len(docs.uploaded) != 0 {
				t.Errorf("uploaded = %v, want none", docs.uploaded)
			}
		})
	}
}
