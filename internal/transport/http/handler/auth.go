package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowchat/internal/app"
	"knowchat/internal/model"
	"knowchat/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=64"`
	Email       string `json:"email" binding:"required,email,max=128"`
	DisplayName string `json:"display_name" binding:"max=128"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	CompanyID   uint   `json:"company_id"`
	InviteCode  string `json:"invite_code" binding:"max=64"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		CompanyID:   req.CompanyID,
		InviteCode:  req.InviteCode,
	})
	if err != nil {
		writeServiceError(c, err, "register failed")
		return
	}

	response.OK(c, gin.H{
		"token":  result.Token,
		"member": memberView(result.Member),
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, err, "login failed")
		return
	}

	response.OK(c, gin.H{
		"token":  result.Token,
		"member": memberView(result.Member),
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	memberID, ok := currentMemberID(c)
	if !ok {
		return
	}

	member, err := h.authService.GetMemberByID(memberID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "fetch current member failed")
		return
	}
	if member == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "member not found")
		return
	}

	response.OK(c, memberView(member))
}

func memberView(m *model.Member) gin.H {
	return gin.H{
		"id":           m.ID,
		"company_id":   m.CompanyID,
		"username":     m.Username,
		"email":        m.Email,
		"display_name": m.DisplayName,
		"role":         m.Role,
	}
}
