// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/conversation"
	"github.com/troforte/assist/services/assist/farmers"
	"github.com/troforte/assist/services/assist/handlers"
	"github.com/troforte/assist/services/assist/ingest"
	"github.com/troforte/assist/services/assist/middleware"
	"github.com/troforte/assist/services/assist/news"
	"github.com/troforte/assist/services/assist/objectstore"
	"github.com/troforte/assist/services/assist/observability"
	"github.com/troforte/assist/services/assist/relay"
)

// Dependencies are the components the route table binds. Optional
// features (News, Farmers, Plant, Ingestor) are left unrouted when nil.
type Dependencies struct {
	Relay    *relay.Relay
	History  *conversation.History
	Plant    *handlers.PlantHandler
	News     *news.Client
	Farmers  *farmers.Service
	Uploader objectstore.Uploader
	Ingestor *ingest.Ingestor
	Store    handlers.Pinger
	Metrics  *observability.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	// Limiter throttles chat and plant analysis. Nil disables it.
	Limiter *middleware.RateLimiter
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", handlers.HandleHealth(deps.Store))
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	throttle := func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		throttle = deps.Limiter.Middleware()
	}

	api := router.Group("/api")
	{
		api.POST("/chat", throttle, handlers.HandleChat(deps.Relay, deps.Metrics))
		api.GET("/history", handlers.HandleListHistory(deps.History, deps.Metrics))
		api.GET("/chatById", handlers.HandleGetChat(deps.History, deps.Metrics))
		api.DELETE("/chat", handlers.HandleDeleteChat(deps.History, deps.Metrics))
		api.DELETE("/history", handlers.HandleClearHistory(deps.History, deps.Metrics))

		if deps.Plant != nil {
			plant := api.Group("/plant-health", throttle)
			{
				plant.POST("/analyze", deps.Plant.Analyze)
				plant.POST("/identify", deps.Plant.Identify)
			}
			api.GET("/analysis-history", deps.Plant.AnalysisHistory)
			api.GET("/analysisById", deps.Plant.AnalysisByID)
		}

		if deps.News != nil {
			api.GET("/news/agriculture", handlers.HandleAgricultureNews(deps.News))
		}

		if deps.Farmers != nil {
			api.POST("/sign-up", handlers.HandleSignUp(deps.Farmers))
			api.POST("/login", handlers.HandleLogin(deps.Farmers))
			api.POST("/register-farmer", handlers.HandleRegisterFarmer(deps.Farmers))
			api.GET("/farmer/:farmerId", handlers.HandleGetFarmer(deps.Farmers))
			api.PUT("/farmer/:farmerId", handlers.HandleUpdateFarmer(deps.Farmers))
		}

		if deps.Uploader != nil {
			api.POST("/upload", handlers.HandleUpload(deps.Uploader, deps.Ingestor))
		}
	}
}
