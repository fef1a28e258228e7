package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowchat/internal/app"
	"knowchat/internal/extract"
	"knowchat/internal/model"
	"knowchat/internal/scope"
	"knowchat/internal/transport/http/middleware"
	"knowchat/internal/transport/http/response"
)

func currentMemberID(c *gin.Context) (uint, bool) {
	idAny, exists := c.Get(middleware.ContextMemberIDKey)
	if !exists {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "member not found in token")
		return 0, false
	}
	id, ok := idAny.(uint)
	if !ok || id == 0 {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return 0, false
	}
	return id, true
}

// scopeFromRequest builds a scope from the scope_type/team_id pair used by
// both query strings and JSON bodies. Empty scope_type means personal.
func scopeFromRequest(scopeType string, teamID uint) (scope.Scope, error) {
	switch scopeType {
	case "", model.ScopePersonal:
		return scope.NewPersonal(), nil
	case model.ScopeTeam:
		sc := scope.NewTeam(teamID)
		if err := sc.Validate(); err != nil {
			return scope.Scope{}, err
		}
		return sc, nil
	default:
		return scope.Scope{}, errors.New("scope_type must be personal or team")
	}
}

// writeServiceError maps the service sentinels onto the response envelope.
func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, extract.ErrValidation), errors.Is(err, extract.ErrExtraction), errors.Is(err, extract.ErrFetch):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUsernameExists):
		response.Error(c, http.StatusBadRequest, response.CodeUsernameExists, err.Error())
	case errors.Is(err, app.ErrEmailExists):
		response.Error(c, http.StatusBadRequest, response.CodeEmailExists, err.Error())
	case errors.Is(err, app.ErrSeatLimitReached):
		response.Error(c, http.StatusConflict, response.CodeSeatLimitReached, err.Error())
	case errors.Is(err, app.ErrInviteInvalid):
		response.Error(c, http.StatusBadRequest, response.CodeInviteInvalid, err.Error())
	case errors.Is(err, app.ErrInvalidCredential):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrThreadNotFound):
		response.Error(c, http.StatusNotFound, response.CodeThreadNotFound, err.Error())
	case errors.Is(err, app.ErrSourceNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSourceNotFound, err.Error())
	case errors.Is(err, app.ErrTeamNotFound):
		response.Error(c, http.StatusNotFound, response.CodeTeamNotFound, err.Error())
	case errors.Is(err, app.ErrAskInFlight):
		response.Error(c, http.StatusConflict, response.CodeAskInFlight, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func sourceView(s model.Source) gin.H {
	return gin.H{
		"id":                s.ID,
		"thread_id":         s.ThreadID,
		"name":              s.Name,
		"summary":           s.Summary,
		"pricing_plans":     s.PricingPlans(),
		"source_type":       s.SourceType,
		"storage_path":      s.StoragePath,
		"inherited_from_id": s.InheritedFromID,
		"created_at":        s.CreatedAt,
	}
}

func sourceViews(sources []model.Source) []gin.H {
	views := make([]gin.H, 0, len(sources))
	for _, s := range sources {
		views = append(views, sourceView(s))
	}
	return views
}
