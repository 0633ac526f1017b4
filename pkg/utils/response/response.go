// Package response provides the unified API response envelope.
package response

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/errors"
)

// ContextKeyRequestID must match the key the RequestID middleware sets.
const ContextKeyRequestID = "request_id"

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// Message is a human-readable message
	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data interface{} `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`

	// Timestamp is the response timestamp (Unix milliseconds)
	Timestamp int64 `json:"timestamp"`
}

// Success writes a 200 envelope carrying data.
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, &Response{Code: 0, Message: "success", Data: data})
}

// Created writes a 201 envelope carrying data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, &Response{Code: 0, Message: "success", Data: data})
}

// Fail writes the error envelope. Errors that are not an Errno map to ErrInternal.
func Fail(c *gin.Context, err error) {
	FailWithData(c, err, nil)
}

// FailWithData writes the error envelope with an additional payload.
func FailWithData(c *gin.Context, err error, data interface{}) {
	e := errors.FromError(err)
	if e == nil {
		Success(c, data)
		return
	}
	write(c, e.HTTPStatus(), &Response{
		Code:    e.Code,
		Message: e.Message(Language(c)),
		Data:    data,
	})
}

// Language picks the message language from Accept-Language.
func Language(c *gin.Context) string {
	accept := c.GetHeader("Accept-Language")
	if strings.HasPrefix(strings.ToLower(accept), "zh") {
		return "zh-CN"
	}
	return "en"
}

func write(c *gin.Context, status int, r *Response) {
	r.RequestID = c.GetString(ContextKeyRequestID)
	r.Timestamp = time.Now().UnixMilli()
	c.JSON(status, r)
}
