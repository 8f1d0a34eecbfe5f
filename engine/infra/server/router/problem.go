package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

const problemContentType = "application/problem+json"

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// RespondProblem writes a canonical RFC 7807 error response.
func RespondProblem(c *gin.Context, problem *core.Problem) {
	prepared := core.NormalizeProblem(problem)
	body := core.BuildProblemBody(prepared)
	logProblem(c, prepared)
	payload, err := json.Marshal(body)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to marshal problem", "error", err)
		fallback := []byte(`{"status":500,"error":"Internal Server Error"}`)
		c.Data(http.StatusInternalServerError, problemContentType, fallback)
		c.Abort()
		return
	}
	c.Data(prepared.Status, problemContentType, payload)
	c.Abort()
}

// RespondError maps err onto a problem. Validation errors keep their message
// as the title; anything else is reported under title with the detail hidden.
func RespondError(c *gin.Context, err error, title string) {
	status := core.StatusForError(err)
	problem := &core.Problem{Status: status, Title: title}
	if code := core.ErrorCode(err); code != "" {
		problem.Extras = map[string]any{"code": code}
	}
	if status == http.StatusBadRequest {
		problem.Title = validationTitle(err)
	} else {
		logger.FromContext(c.Request.Context()).Error(title, "error", err)
	}
	RespondProblem(c, problem)
}

func validationTitle(err error) string {
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr.Message != "" {
		return coreErr.Message
	}
	return http.StatusText(http.StatusBadRequest)
}

func logProblem(c *gin.Context, problem *core.Problem) {
	log := logger.FromContext(c.Request.Context())
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{
		"status", problem.Status,
		"title", problem.Title,
		"route", route,
	}
	if code, ok := problem.Extras["code"]; ok {
		fields = append(fields, "code", code)
	}
	if requestID := c.Writer.Header().Get(RequestIDHeader); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if problem.Status >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
		return
	}
	log.Warn("Request failed", fields...)
}
