package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowchat/internal/app"
	"knowchat/internal/transport/http/response"
)

type TeamHandler struct {
	org *app.OrgService
}

func NewTeamHandler(org *app.OrgService) *TeamHandler {
	return &TeamHandler{org: org}
}

type createTeamRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=128"`
	MemberIDs []uint `json:"member_ids"`
}

func (h *TeamHandler) Create(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	var req createTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	team, err := h.org.CreateTeam(app.CreateTeamInput{
		CreatorID: memberID,
		Name:      req.Name,
		MemberIDs: req.MemberIDs,
	})
	if err != nil {
		writeServiceError(c, err, "create team failed")
		return
	}
	response.OK(c, team)
}

func (h *TeamHandler) List(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	teams, err := h.org.ListTeams(memberID)
	if err != nil {
		writeServiceError(c, err, "list teams failed")
		return
	}
	response.OK(c, gin.H{"teams": teams})
}

type createInviteRequest struct {
	Email  string `json:"email" binding:"required,email,max=128"`
	TeamID uint   `json:"team_id"`
}

func (h *TeamHandler) CreateInvite(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	invite, err := h.org.CreateInvite(app.CreateInviteInput{
		CreatorID: memberID,
		Email:     req.Email,
		TeamID:    req.TeamID,
	})
	if err != nil {
		writeServiceError(c, err, "create invite failed")
		return
	}
	response.OK(c, gin.H{
		"code":    invite.Code,
		"email":   invite.Email,
		"team_id": invite.TeamID,
	})
}

func (h *TeamHandler) ListMembers(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}
	members, err := h.org.ListCompanyMembers(memberID)
	if err != nil {
		writeServiceError(c, err, "list company members failed")
		return
	}

	views := make([]gin.H, 0, len(members))
	for _, m := range members {
		mm := m
		views = append(views, memberView(&mm))
	}
	response.OK(c, gin.H{"members": views})
}
