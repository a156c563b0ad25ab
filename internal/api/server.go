// Package api wires the HTTP surface described in spec.md §6: the
// three public dialect endpoints, the generic passthrough, the OAuth
// boundary, and the management endpoints, as thin gin handlers over
// the core components.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/dispatcher"
	"github.com/router-for-me/acctproxy/internal/oauthflow"
	"github.com/router-for-me/acctproxy/internal/refresher"
	"github.com/router-for-me/acctproxy/internal/selector"
	"github.com/router-for-me/acctproxy/internal/store"
)

// Server holds everything the HTTP layer needs.
type Server struct {
	Store      *store.Store
	Selector   *selector.Selector
	Refresher  *refresher.Refresher
	Dispatcher *dispatcher.Dispatcher
	Provider   *oauthflow.Provider
	Clock      clockid.Clock

	pendingMu sync.Mutex
	pending   map[string]*oauthflow.PKCECodes
}

// NewRouter builds the gin engine with every route from spec.md §6
// registered.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(requestIDMiddleware(), ginRecoveryLogger())

	r.GET("/v1/models", s.handleModels)
	r.POST("/v1/responses", s.handleResponses)
	r.POST("/v1/chat/completions", s.handleChatCompletions)
	r.POST("/v1/completions", s.handleCompletions)

	r.GET("/oauth/start", s.handleOAuthStart)
	r.GET("/auth/callback", s.handleOAuthCallback)

	mgmt := r.Group("/accounts")
	{
		mgmt.GET("", s.handleListAccounts)
		mgmt.DELETE("/:id", s.handleDeleteAccount)
		mgmt.POST("/:id/refresh", s.handleForceRefresh)
		mgmt.POST("/:id/disable", s.handleDisable)
		mgmt.POST("/:id/enable", s.handleEnable)
		mgmt.POST("/:id/activate", s.handleActivate)
		mgmt.POST("/import", s.handleImport)
		mgmt.POST("/relay", s.handleAddRelay)
	}

	// Generic passthrough must be registered last so the explicit
	// routes above take precedence, matching spec.md §6's "ALL /v1/*
	// otherwise".
	r.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 3 && c.Request.URL.Path[:3] == "/v1" {
			s.handlePassthrough(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := clockid.NewID()
		c.Set("request_id", id)
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"request_id": id,
			"status":     c.Writer.Status(),
		}).Infof("%s %s (%s)", c.Request.Method, c.Request.URL.Path, time.Since(start))
	}
}

func ginRecoveryLogger() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		log.WithField("panic", err).Error("api: recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}
