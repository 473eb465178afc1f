package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"askhc/src/core/chat"
)

type askRequest struct {
	Question       string `json:"question" binding:"required,min=1,max=1000"`
	IncludeSources *bool  `json:"include_sources"`
	SessionID      string `json:"session_id"`
}

// Ask godoc
// @Summary Ask a question about the indexed documents
// @Tags chat
// @Accept json
// @Produce json
// @Param body body askRequest true "Question; include_sources defaults to true"
// @Success 200 {object} chat.AskResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/chat/ask [post]
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	includeSources := true
	if req.IncludeSources != nil {
		includeSources = *req.IncludeSources
	}

	resp := h.chatService.Ask(c.Request.Context(), chat.AskRequest{
		Question:       req.Question,
		IncludeSources: includeSources,
		SessionID:      req.SessionID,
	})
	sendJSON(c, http.StatusOK, resp)
}

// GetHistory godoc
// @Summary Get the conversation history
// @Tags chat
// @Param session_id query string false "Chat session ID"
// @Produce json
// @Success 200 {object} chat.HistoryResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/chat/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.chatService.History(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, history)
}

// ClearHistory godoc
// @Summary Clear the conversation history
// @Tags chat
// @Param session_id query string false "Chat session ID"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/chat/history [delete]
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.chatService.ClearHistory(c.Request.Context(), c.Query("session_id")); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, MessageResponse{Message: "Conversation history cleared"})
}

// GetStats godoc
// @Summary Get chat statistics
// @Tags chat
// @Param session_id query string false "Chat session ID"
// @Produce json
// @Success 200 {object} chat.Stats
// @Failure 500 {object} ErrorResponse
// @Router /api/chat/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.chatService.Stats(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, stats)
}
