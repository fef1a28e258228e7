package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowchat/internal/app"
	"knowchat/internal/extract"
	"knowchat/internal/transport/http/response"
)

func callWriteServiceError(t *testing.T, err error) (int, response.APIResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	writeServiceError(c, err, "fallback message")

	var body response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestWriteServiceErrorExtractFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"validation", fmt.Errorf("%w: only pdf files are supported", extract.ErrValidation)},
		{"extraction", fmt.Errorf("%w: pdf has no extractable text", extract.ErrExtraction)},
		{"fetch", fmt.Errorf("%w: host not allowed", extract.ErrFetch)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := callWriteServiceError(t, tc.err)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, response.CodeBadRequest, body.Code)
			assert.Equal(t, tc.err.Error(), body.Message)
		})
	}
}

func TestWriteServiceErrorSentinelMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{app.ErrInvalidInput, http.StatusBadRequest, response.CodeBadRequest},
		{app.ErrForbidden, http.StatusForbidden, response.CodeForbidden},
		{app.ErrThreadNotFound, http.StatusNotFound, response.CodeThreadNotFound},
		{app.ErrSourceNotFound, http.StatusNotFound, response.CodeSourceNotFound},
		{app.ErrAskInFlight, http.StatusConflict, response.CodeAskInFlight},
	}
	for _, tc := range cases {
		status, body := callWriteServiceError(t, tc.err)
		assert.Equal(t, tc.status, status)
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, tc.err.Error(), body.Message)
	}
}

func TestWriteServiceErrorUnknownFallsToInternal(t *testing.T) {
	status, body := callWriteServiceError(t, fmt.Errorf("driver went away"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, response.CodeInternalServer, body.Code)
	assert.Equal(t, "fallback message", body.Message)
}
