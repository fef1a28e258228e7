package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowchat/internal/app"
	"knowchat/internal/transport/http/response"
)

type ChatHandler struct {
	threads *app.ThreadService
}

func NewChatHandler(threads *app.ThreadService) *ChatHandler {
	return &ChatHandler{threads: threads}
}

type askRequest struct {
	ScopeType        string `json:"scope_type"`
	TeamID           uint   `json:"team_id"`
	ThreadID         uint   `json:"thread_id"` // 0 creates a thread lazily
	Question         string `json:"question" binding:"required,max=4000"`
	SelectedSourceID uint   `json:"selected_source_id"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	sc, err := scopeFromRequest(req.ScopeType, req.TeamID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	thread, err := h.threads.EnsureThread(c.Request.Context(), memberID, sc, req.ThreadID)
	if err != nil {
		writeServiceError(c, err, "resolve thread failed")
		return
	}

	result, err := h.threads.Ask(c.Request.Context(), app.AskInput{
		MemberID:         memberID,
		Scope:            sc,
		ThreadID:         thread.ID,
		Question:         req.Question,
		SelectedSourceID: req.SelectedSourceID,
	})
	if err != nil {
		writeServiceError(c, err, "ask failed")
		return
	}

	response.OK(c, gin.H{
		"thread_id": thread.ID,
		"messages":  result.Messages,
	})
}

func (h *ChatHandler) History(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	sc, err := scopeFromRequest(c.Query("scope_type"), parseUintValue(c.Query("team_id")))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	threadID := parseUintValue(c.Query("thread_id"))
	if threadID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "thread_id is required")
		return
	}
	limit := int(parseUintValue(c.Query("limit")))

	messages, err := h.threads.History(c.Request.Context(), memberID, sc, threadID, limit)
	if err != nil {
		writeServiceError(c, err, "fetch history failed")
		return
	}
	response.OK(c, gin.H{"messages": messages})
}
