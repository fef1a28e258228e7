package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"knowchat/internal/app"
	"knowchat/internal/extract"
	"knowchat/internal/scope"
	"knowchat/internal/transport/http/response"
	"knowchat/internal/watch"
)

const maxUploadBytes = 10 << 20 // 10 MiB

type SourceHandler struct {
	knowledge *app.KnowledgeService
	threads   *app.ThreadService
	hub       *watch.Hub
}

func NewSourceHandler(knowledge *app.KnowledgeService, threads *app.ThreadService, hub *watch.Hub) *SourceHandler {
	return &SourceHandler{knowledge: knowledge, threads: threads, hub: hub}
}

// UploadPDF ingests a PDF from a multipart form. Team uploads without a
// thread id create the thread first (the first-write rule).
func (h *SourceHandler) UploadPDF(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	sc, err := scopeFromRequest(c.PostForm("scope_type"), parseUintValue(c.PostForm("team_id")))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file field is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file exceeds the 10MB limit")
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only .pdf files are accepted here")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open upload failed")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read upload failed")
		return
	}
	if len(data) > maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file exceeds the 10MB limit")
		return
	}

	threadID, err := h.ensureThreadID(c, memberID, sc, parseUintValue(c.PostForm("thread_id")))
	if err != nil {
		writeServiceError(c, err, "resolve thread failed")
		return
	}

	source, err := h.knowledge.AddPDF(c.Request.Context(), app.AddPDFInput{
		MemberID: memberID,
		Scope:    sc,
		ThreadID: threadID,
		Filename: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		writeServiceError(c, err, "upload pdf failed")
		return
	}
	response.OK(c, sourceView(*source))
}

type addTextRequest struct {
	ScopeType string `json:"scope_type"`
	TeamID    uint   `json:"team_id"`
	ThreadID  uint   `json:"thread_id"`
	Name      string `json:"name" binding:"required,max=256"`
	Text      string `json:"text" binding:"required"`
}

// AddText accepts either a JSON body with pasted text or a multipart form
// with a plain-text file.
func (h *SourceHandler) AddText(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.addTextFile(c, memberID)
		return
	}

	var req addTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	sc, err := scopeFromRequest(req.ScopeType, req.TeamID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	threadID, err := h.ensureThreadID(c, memberID, sc, req.ThreadID)
	if err != nil {
		writeServiceError(c, err, "resolve thread failed")
		return
	}

	source, err := h.knowledge.AddText(c.Request.Context(), app.AddTextInput{
		MemberID: memberID,
		Scope:    sc,
		ThreadID: threadID,
		Name:     req.Name,
		Text:     req.Text,
	})
	if err != nil {
		writeServiceError(c, err, "add text failed")
		return
	}
	response.OK(c, sourceView(*source))
}

func (h *SourceHandler) addTextFile(c *gin.Context, memberID uint) {
	sc, err := scopeFromRequest(c.PostForm("scope_type"), parseUintValue(c.PostForm("team_id")))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file field is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file exceeds the 10MB limit")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open upload failed")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read upload failed")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	result, err := extract.TextFile(fileHeader.Filename, contentType, data)
	if err != nil {
		writeServiceError(c, err, "extract text failed")
		return
	}

	threadID, err := h.ensureThreadID(c, memberID, sc, parseUintValue(c.PostForm("thread_id")))
	if err != nil {
		writeServiceError(c, err, "resolve thread failed")
		return
	}

	source, err := h.knowledge.AddText(c.Request.Context(), app.AddTextInput{
		MemberID: memberID,
		Scope:    sc,
		ThreadID: threadID,
		Name:     result.Title,
		Text:     result.Text,
	})
	if err != nil {
		writeServiceError(c, err, "add text failed")
		return
	}
	response.OK(c, sourceView(*source))
}

type addURLRequest struct {
	ScopeType string `json:"scope_type"`
	TeamID    uint   `json:"team_id"`
	ThreadID  uint   `json:"thread_id"`
	URL       string `json:"url" binding:"required,max=2048"`
}

func (h *SourceHandler) AddURL(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	var req addURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	sc, err := scopeFromRequest(req.ScopeType, req.TeamID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	threadID, err := h.ensureThreadID(c, memberID, sc, req.ThreadID)
	if err != nil {
		writeServiceError(c, err, "resolve thread failed")
		return
	}

	source, err := h.knowledge.AddURL(c.Request.Context(), app.AddURLInput{
		MemberID: memberID,
		Scope:    sc,
		ThreadID: threadID,
		URL:      req.URL,
	})
	if err != nil {
		writeServiceError(c, err, "add url failed")
		return
	}
	response.OK(c, sourceView(*source))
}

func (h *SourceHandler) List(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	sc, err := scopeFromRequest(c.Query("scope_type"), parseUintValue(c.Query("team_id")))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	sources, err := h.knowledge.ListSources(memberID, sc, parseUintValue(c.Query("thread_id")))
	if err != nil {
		writeServiceError(c, err, "list sources failed")
		return
	}
	response.OK(c, gin.H{"sources": sourceViews(sources)})
}

// Delete removes a source. The confirm flag is required; deletion is
// permanent and also removes the stored blob where one exists.
func (h *SourceHandler) Delete(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	sourceID := parseUintValue(c.Param("id"))
	if sourceID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid source id")
		return
	}
	if c.Query("confirm") != "true" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "confirm=true is required to delete a source")
		return
	}

	if err := h.knowledge.DeleteSource(c.Request.Context(), memberID, sourceID); err != nil {
		writeServiceError(c, err, "delete source failed")
		return
	}
	response.OK(c, gin.H{"deleted": sourceID})
}

// Watch streams the source list for one scope over SSE: a snapshot on
// connect, then a fresh snapshot after every change.
func (h *SourceHandler) Watch(c *gin.Context) {
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

	sub, err := h.hub.Subscribe(c.Request.Context(), watch.SourceTopic(memberID, sc, threadID))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "subscribe failed")
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	send := func() bool {
		sources, err := h.knowledge.ListSources(memberID, sc, threadID)
		if err != nil {
			return false
		}
		c.SSEvent("sources", gin.H{"sources": sourceViews(sources)})
		c.Writer.Flush()
		return true
	}
	if !send() {
		return
	}

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case _, open := <-sub.Events():
			if !open || !send() {
				return
			}
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

// ensureThreadID resolves team ingestion to a concrete thread, creating one
// lazily when none is given. Personal global sources keep thread id 0.
func (h *SourceHandler) ensureThreadID(c *gin.Context, memberID uint, sc scope.Scope, threadID uint) (uint, error) {
	if !sc.IsTeam() {
		return 0, nil
	}
	thread, err := h.threads.EnsureThread(c.Request.Context(), memberID, sc, threadID)
	if err != nil {
		return 0, err
	}
	return thread.ID, nil
}

func parseUintValue(raw string) uint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}
