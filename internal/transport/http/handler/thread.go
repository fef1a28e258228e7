package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowchat/internal/app"
	"knowchat/internal/model"
	"knowchat/internal/transport/http/response"
)

type ThreadHandler struct {
	threads   *app.ThreadService
	knowledge *app.KnowledgeService
}

func NewThreadHandler(threads *app.ThreadService, knowledge *app.KnowledgeService) *ThreadHandler {
	return &ThreadHandler{threads: threads, knowledge: knowledge}
}

type createThreadRequest struct {
	ScopeType        string `json:"scope_type"`
	TeamID           uint   `json:"team_id"`
	InheritSourceIDs []uint `json:"inherit_source_ids"`
}

// Create starts a new chat thread. For team threads, inherit_source_ids
// copies the named personal sources into the new thread's collection.
func (h *ThreadHandler) Create(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	sc, err := scopeFromRequest(req.ScopeType, req.TeamID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	if len(req.InheritSourceIDs) > 0 && !sc.IsTeam() {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "inherit_source_ids requires a team thread")
		return
	}

	thread, err := h.threads.CreateThread(c.Request.Context(), memberID, sc)
	if err != nil {
		writeServiceError(c, err, "create thread failed")
		return
	}

	inherited := []model.Source{}
	if len(req.InheritSourceIDs) > 0 {
		inherited, err = h.knowledge.InheritIntoThread(c.Request.Context(), memberID, req.InheritSourceIDs, thread.ID)
		if err != nil {
			writeServiceError(c, err, "inherit sources failed")
			return
		}
	}

	response.OK(c, gin.H{
		"thread":            threadView(*thread),
		"inherited_sources": sourceViews(inherited),
	})
}

func (h *ThreadHandler) List(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	sc, err := scopeFromRequest(c.Query("scope_type"), parseUintValue(c.Query("team_id")))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	threads, err := h.threads.ListThreads(memberID, sc)
	if err != nil {
		writeServiceError(c, err, "list threads failed")
		return
	}

	views := make([]gin.H, 0, len(threads))
	for _, t := range threads {
		views = append(views, threadView(t))
	}
	response.OK(c, gin.H{"threads": views})
}

func threadView(t model.Thread) gin.H {
	return gin.H{
		"id":         t.ID,
		"member_id":  t.MemberID,
		"scope_type": t.ScopeType,
		"team_id":    t.TeamID,
		"team_name":  t.TeamName,
		"created_at": t.CreatedAt,
		"updated_at": t.UpdatedAt,
	}
}
