package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"askhc/src/core/document"
	"askhc/src/infrastructure/job"
)

type clearResponse struct {
	Message          string `json:"message"`
	VectorsRemaining int    `json:"vectors_remaining"`
}

type reindexResponse struct {
	Message        string `json:"message"`
	TotalChunks    int    `json:"total_chunks"`
	TotalDocuments int    `json:"total_documents"`
	FilesIndexed   int    `json:"files_indexed"`
	FilesFailed    int    `json:"files_failed"`
}

type jobAcceptedResponse struct {
	JobID  string        `json:"job_id"`
	Status job.JobStatus `json:"status"`
}

func (h *Handler) limitBody(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
}

// sendFormError reports a body over the upload limit as 413 and anything else
// as a bad request carrying msg.
func sendFormError(c *gin.Context, err, msg error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:    "PAYLOAD_TOO_LARGE",
			Message: fmt.Sprintf("upload exceeds the limit of %d MB", tooLarge.Limit>>20),
		})
		return
	}
	sendError(c, http.StatusBadRequest, msg)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return data, nil
}

// UploadDocument godoc
// @Summary Upload and index a document
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF, TXT or MD file"
// @Success 200 {object} document.UploadResult
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/documents/upload [post]
func (h *Handler) UploadDocument(c *gin.Context) {
	h.limitBody(c)
	fh, err := c.FormFile("file")
	if err != nil {
		sendFormError(c, err, errors.New("no file uploaded"))
		return
	}

	data, err := readFormFile(fh)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	res, err := h.docService.Upload(c.Request.Context(), fh.Filename, data)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, res)
}

// UploadDocuments godoc
// @Summary Upload and index several documents
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "PDF, TXT or MD files"
// @Success 200 {object} document.BatchUploadResult
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/documents/upload-multiple [post]
func (h *Handler) UploadDocuments(c *gin.Context) {
	h.limitBody(c)
	form, err := c.MultipartForm()
	if err != nil {
		sendFormError(c, err, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		sendError(c, http.StatusBadRequest, errors.New("no files uploaded"))
		return
	}

	files := make([]document.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			sendError(c, http.StatusInternalServerError, err)
			return
		}
		files = append(files, document.File{Name: fh.Filename, Data: data})
	}

	res, err := h.docService.UploadMany(c.Request.Context(), files)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, res)
}

// ListDocuments godoc
// @Summary List uploaded documents
// @Tags documents
// @Produce json
// @Success 200 {object} document.ListResult
// @Failure 500 {object} ErrorResponse
// @Router /api/documents/list [get]
func (h *Handler) ListDocuments(c *gin.Context) {
	res, err := h.docService.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, res)
}

// DeleteDocument godoc
// @Summary Delete a document and its vectors
// @Tags documents
// @Param filename path string true "File name"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/documents/files/{filename} [delete]
func (h *Handler) DeleteDocument(c *gin.Context) {
	name := c.Param("filename")
	if err := h.docService.Delete(c.Request.Context(), name); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, MessageResponse{Message: "Document deleted: " + name})
}

// ReindexDocuments godoc
// @Summary Re-index every stored document
// @Description With async=true the work runs as a background job.
// @Tags documents
// @Param async query bool false "Run as a background job"
// @Produce json
// @Success 200 {object} reindexResponse
// @Success 202 {object} jobAcceptedResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/documents/reindex [post]
func (h *Handler) ReindexDocuments(c *gin.Context) {
	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		if h.jobService == nil {
			sendError(c, http.StatusServiceUnavailable, job.ErrJobsDisabled)
			return
		}
		j, err := h.jobService.EnqueueJob(c.Request.Context(), job.TaskTypeReindex, nil)
		if err != nil {
			sendError(c, http.StatusInternalServerError, err)
			return
		}
		sendJSON(c, http.StatusAccepted, jobAcceptedResponse{
			JobID:  strconv.FormatInt(j.ID, 10),
			Status: j.Status,
		})
		return
	}

	res, total, err := h.docService.Reindex(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, reindexResponse{
		Message:        "Documents re-indexed successfully",
		TotalChunks:    res.TotalChunks,
		TotalDocuments: total,
		FilesIndexed:   res.Files,
		FilesFailed:    res.Failed,
	})
}

// ClearDocuments godoc
// @Summary Clear the vector store
// @Description Stored files are kept.
// @Tags documents
// @Produce json
// @Success 200 {object} clearResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/documents/clear [delete]
func (h *Handler) ClearDocuments(c *gin.Context) {
	remaining, err := h.docService.Clear(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, clearResponse{
		Message:          "Vector store cleared",
		VectorsRemaining: remaining,
	})
}
