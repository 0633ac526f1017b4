package response

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, lang string, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		c.Set(ContextKeyRequestID, "rid-1")
		h(c)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestSuccess(t *testing.T) {
	w, body := serve(t, "", func(c *gin.Context) { Success(c, map[string]int{"n": 1}) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "rid-1", body.RequestID)
	assert.NotZero(t, body.Timestamp)
}

func TestFailMapsErrno(t *testing.T) {
	tests := []struct {
		name   string
		lang   string
		err    error
		status int
		code   int
		msg    string
	}{
		{"未找到", "", errors.ErrDocumentNotFound, http.StatusNotFound, errors.ErrDocumentNotFound.Code, "Document not found"},
		{"中文消息", "zh-CN,zh;q=0.9", errors.ErrDocumentNotFound, http.StatusNotFound, errors.ErrDocumentNotFound.Code, "文档不存在"},
		{"包装错误", "", fmt.Errorf("query: %w", errors.ErrEmptyQuery), http.StatusBadRequest, errors.ErrEmptyQuery.Code, errors.ErrEmptyQuery.MessageEN},
		{"普通错误", "", fmt.Errorf("boom"), http.StatusInternalServerError, errors.ErrInternal.Code, errors.ErrInternal.MessageEN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serve(t, tt.lang, func(c *gin.Context) { Fail(c, tt.err) })
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.msg, body.Message)
		})
	}
}
