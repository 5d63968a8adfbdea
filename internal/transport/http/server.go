package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/auth"
	"github.com/vovakirdan/partyhub-server/internal/config"
	"github.com/vovakirdan/partyhub-server/internal/store"
)

// Hub is everything the HTTP layer needs from the session hub.
type Hub interface {
	Sessions
	Inspector
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Hub      Hub
	Registry *Registry
	Catalog  Catalog
	Matches  store.MatchStore // nil without persistence
	Version  string
}

// NewServer builds an HTTP server with the websocket endpoint, the REST
// inspection API and the MCP endpoint.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	opts := WSOptions{
		MaxMessageBytes:    cfg.MaxMessageBytes,
		SendBuffer:         cfg.SendBuffer,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		WriteTimeout:       cfg.WriteTimeout,
		JWTRequired:        cfg.JWTRequired,
	}
	if cfg.JWTSecret != "" {
		opts.JWT = &auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      24 * time.Hour,
		}
	}
	ws := NewWSHandler(deps.Hub, deps.Registry, opts, logger)

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(ws))

	api := NewAPIHandlers(deps.Hub, deps.Catalog, deps.Matches, deps.Registry, logger)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/games", api.ListGames)
		apiGroup.GET("/rooms", api.ListRooms)
		apiGroup.GET("/rooms/:id", api.GetRoom)
		apiGroup.GET("/matches", api.ListMatches)
		apiGroup.GET("/stats", api.Stats)
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}
	router.POST("/mcp", mcpHandler(NewMCPServer(deps.Hub, deps.Catalog, version)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
