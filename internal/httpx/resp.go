package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestIDKey is the gin context key holding the per-request id.
const RequestIDKey = "request_id"

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// OK writes data as a 200 JSON body.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail writes an error body with the given status, business code and message.
func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, ErrorResponse{
		OK:    false,
		Code:  code,
		Error: message,
	})
}

// FailErr writes an AppError. The wrapped backend error is logged with the request id
// and is not part of the response.
func FailErr(c *gin.Context, err *AppError) {
	entry := logrus.WithFields(logrus.Fields{
		"request_id": c.GetString(RequestIDKey),
		"path":       c.Request.URL.Path,
		"code":       err.Code,
	})
	if err.Err != nil {
		entry.WithError(err.Err).Error(err.Message)
	} else if err.HTTPStatus >= http.StatusInternalServerError {
		entry.Error(err.Message)
	}

	c.AbortWithStatusJSON(err.HTTPStatus, ErrorResponse{
		OK:    false,
		Code:  err.Code,
		Error: err.Message,
	})
}
