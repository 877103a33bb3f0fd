// Package router wires handlers and middleware to URL paths.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/handler"
	"github.com/iliyamo/photo-monetization/internal/middleware"
	"github.com/iliyamo/photo-monetization/internal/model"
)

// RegisterRoutes registers routes that need no authentication and no
// dependencies: the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers /v1/auth and /v1/me. limiter guards the
// credential endpoints; session guards everything that needs a caller.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, session, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/google", a.Google)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, session)

	me := e.Group("/v1/me", session)
	me.GET("", a.Me)
	me.PATCH("", a.UpdateMe)
}

// RegisterImages registers the image, analysis and distribution routes.
// Requesting a distribution is reserved for paid plans.
func RegisterImages(e *echo.Echo, h *handler.ImageHandler, d *handler.DistributionHandler, session echo.MiddlewareFunc) {
	g := e.Group("/v1/images", session)
	g.POST("", h.Upload)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/download", h.Download)
	g.DELETE("/:id", h.Delete)

	g.PUT("/:id/analysis", h.PutAnalysis)
	g.GET("/:id/analysis", h.GetAnalysis)

	g.POST("/:id/distributions", d.Request, middleware.RequirePlan(model.PlanPro, model.PlanEnterprise))
	g.GET("/:id/distributions", d.List)
}

// RegisterPlatforms registers the public platform catalog behind the
// response cache.
func RegisterPlatforms(e *echo.Echo, d *handler.DistributionHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/platforms", d.Platforms, cache)
}
