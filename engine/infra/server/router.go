package server

import (
	"github.com/gin-gonic/gin"

	"github.com/gcpassist/gcpassist/engine/infra/monitoring"
	"github.com/gcpassist/gcpassist/engine/infra/server/routes"
	"github.com/gcpassist/gcpassist/engine/transcribe"
	appconfig "github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// Dependencies are the services the HTTP surface delegates to.
type Dependencies struct {
	Conversation Answerer
	// Transcriber is nil when transcription is disabled.
	Transcriber transcribe.Transcriber
	Monitoring  *monitoring.Service
}

// NewRouter builds the gin engine with middleware and routes registered.
func NewRouter(log logger.Logger, cfg *appconfig.ServerConfig, deps Dependencies) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemoryByte
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(log))
	if cfg != nil && cfg.CORSEnabled {
		r.Use(CORSMiddleware(cfg.CORS))
	}
	if deps.Monitoring != nil {
		if deps.Monitoring.IsInitialized() {
			r.Use(deps.Monitoring.GinMiddleware())
		}
		r.GET(deps.Monitoring.Path(), gin.WrapH(deps.Monitoring.ExporterHandler()))
	}
	r.GET(routes.Health(), HealthHandler())
	r.POST(routes.Chat(), ChatHandler(deps.Conversation))
	r.POST(routes.Transcribe(), TranscribeHandler(deps.Transcriber))
	return r
}
