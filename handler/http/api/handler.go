package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"askhc/src/core/chat"
	"askhc/src/core/document"
	"askhc/src/core/system"
	"askhc/src/infrastructure/job"
	"askhc/src/infrastructure/log"
)

type ChatService interface {
	Ask(ctx context.Context, req chat.AskRequest) *chat.AskResponse
	History(ctx context.Context, session string) (*chat.HistoryResponse, error)
	ClearHistory(ctx context.Context, session string) error
	Stats(ctx context.Context, session string) (*chat.Stats, error)
}

type DocumentService interface {
	Upload(ctx context.Context, name string, data []byte) (*document.UploadResult, error)
	UploadMany(ctx context.Context, files []document.File) (*document.BatchUploadResult, error)
	List(ctx context.Context) (*document.ListResult, error)
	Delete(ctx context.Context, name string) error
	Clear(ctx context.Context) (int, error)
	Reindex(ctx context.Context) (*document.LoadResult, int, error)
}

type JobService interface {
	EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*job.Job, error)
	GetJob(ctx context.Context, id int64) (*job.Job, error)
}

type HealthService interface {
	CheckHealth(ctx context.Context) *system.HealthStatus
}

type Handler struct {
	chatService   ChatService
	docService    DocumentService
	jobService    JobService
	healthService HealthService
	maxUpload     int64
}

// NewHandler wires the services. jobService may be nil when background jobs
// are disabled.
func NewHandler(chatService ChatService, docService DocumentService, jobService JobService, healthService HealthService, maxUpload int64) *Handler {
	return &Handler{
		chatService:   chatService,
		docService:    docService,
		jobService:    jobService,
		healthService: healthService,
		maxUpload:     maxUpload,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// Chat routes
	api.POST("/chat/ask", h.Ask)
	api.GET("/chat/history", h.GetHistory)
	api.DELETE("/chat/history", h.ClearHistory)
	api.GET("/chat/stats", h.GetStats)

	// Document routes
	api.POST("/documents/upload", h.UploadDocument)
	api.POST("/documents/upload-multiple", h.UploadDocuments)
	api.GET("/documents/list", h.ListDocuments)
	api.DELETE("/documents/files/:filename", h.DeleteDocument)
	api.POST("/documents/reindex", h.ReindexDocuments)
	api.DELETE("/documents/clear", h.ClearDocuments)

	// Job routes
	api.GET("/jobs/:id", h.GetJob)

	// System routes
	r.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// sendError maps known errors to their status and code. status is used for
// anything else.
func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case errors.Is(err, document.ErrUnsupportedFileType):
		code = "UNSUPPORTED_FILE_TYPE"
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrInvalidFilename):
		code = "BAD_REQUEST"
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrDocumentNotFound), errors.Is(err, job.ErrJobNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, job.ErrJobsDisabled):
		code = "JOBS_DISABLED"
		status = http.StatusServiceUnavailable
	case status == http.StatusBadRequest:
		code = "BAD_REQUEST"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		log.Error(err, "request failed", "path", c.FullPath())
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
