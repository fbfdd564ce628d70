package api

import (
	"log/slog"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/a2a"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every endpoint of the agent.
func NewRouter(h *Handlers, a2aHandler *a2a.A2AHandler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(logger))

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// A2A
	router.GET("/.well-known/agent.json", a2aHandler.ServeAgentCard)
	router.POST("/a2a/insights", a2aHandler.HandleInsights)

	api := router.Group("/api")
	{
		api.POST("/insights", h.StartInsights)
		api.GET("/insights/:id", h.GetInsights)
		api.DELETE("/insights/:id", h.CancelInsights)
		api.POST("/summaries", h.SummarizeGroup)

		api.GET("/categories", h.Categories)
		api.GET("/trends/:category/:keyword", h.Trends)
		api.GET("/youtube/:kind/:keyword", h.YouTube)

		api.GET("/keyword-groups", h.KeywordGroups)
		api.GET("/dashboard", h.Dashboard)
	}

	return router
}
