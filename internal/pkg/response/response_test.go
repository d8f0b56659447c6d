package response

import (
	"Atelier/internal/api/dto"
	"Atelier/internal/chat"
	"Atelier/internal/service"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	var cmd dto.WsCommand
	validationErr := validator.New().Struct(&cmd)
	require.Error(t, validationErr)

	var target map[string]any
	syntaxErr := json.Unmarshal([]byte(`{"op":`), &target)
	require.Error(t, syntaxErr)

	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"validator", validationErr, BadRequest, "参数错误"},
		{"json syntax", syntaxErr, BadRequest, "Json错误"},
		{"not found", &chat.NotFoundError{ThreadID: 5}, NotFound, "chat: thread 5 not found"},
		{"rate limited", service.ErrRateLimited, service.TooManyRequests, service.ErrRateLimited.Error()},
		{"unknown", errors.New("disk on fire"), InternalServerError, service.UnExpectedError.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := Resolve(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestErrorWritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/chat/threads/1/messages", nil)

	Error(c, &chat.TransientIOError{Op: "list messages", Err: errors.New("timeout")})

	assert.Equal(t, http.StatusOK, w.Code)
	var res dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, service.ServiceUnavailable, res.Code)
	assert.Nil(t, res.Data)
}
