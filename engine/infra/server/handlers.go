package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/infra/monitoring"
	"github.com/gcpassist/gcpassist/engine/infra/server/router"
	"github.com/gcpassist/gcpassist/engine/rag"
	"github.com/gcpassist/gcpassist/engine/transcribe"
)

const (
	msgProcessFailed       = "Failed to process request"
	msgMessageRequired     = "Message is required"
	msgAudioRequired       = "Audio file is required"
	msgTranscribeFailed    = "Failed to transcribe audio"
	msgTranscribeDisabled  = "Transcription is disabled"
	audioFormField         = "audio"
	maxAudioUploadBytes    = 25 << 20
	maxMultipartMemoryByte = 8 << 20
)

// Answerer runs one conversation turn.
type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Response, error)
}

// ChatHandler serves POST /api/v0/chat.
func ChatHandler(conv Answerer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rag.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			router.RespondError(c, rag.NewValidationError(msgMessageRequired), msgProcessFailed)
			return
		}
		resp, err := conv.Answer(c.Request.Context(), req)
		if err != nil {
			router.RespondError(c, err, msgProcessFailed)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// TranscribeHandler serves POST /api/v0/transcribe. A nil transcriber means
// the feature is turned off.
func TranscribeHandler(t transcribe.Transcriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		if t == nil {
			router.RespondProblem(c, &core.Problem{Status: http.StatusServiceUnavailable, Title: msgTranscribeDisabled})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioUploadBytes)
		header, err := c.FormFile(audioFormField)
		if err != nil {
			router.RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Title: msgAudioRequired})
			return
		}
		file, err := header.Open()
		if err != nil {
			router.RespondError(c, err, msgTranscribeFailed)
			return
		}
		defer file.Close()
		text, err := t.Transcribe(c.Request.Context(), header.Filename, file)
		if err != nil {
			router.RespondError(c, err, msgTranscribeFailed)
			return
		}
		c.JSON(http.StatusOK, gin.H{"text": text})
	}
}

// HealthHandler serves GET /healthz.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, commit, _ := monitoring.BuildInfo()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version, "commit": commit})
	}
}
