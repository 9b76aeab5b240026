package server

import "github.com/labstack/echo/v4"

type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

type Server interface {
	Health(c echo.Context) error
	Nearby(c echo.Context) error
	Resolve(c echo.Context) error
	PendingSelections(c echo.Context) error
	ApplySelection(c echo.Context) error
}

func RegisterHandlers(router EchoRouter, si Server, _ ...echo.MiddlewareFunc) {
	router.GET("/health", si.Health).Name = "health"
	router.GET("/nearby", si.Nearby).Name = "nearby"
	router.POST("/admin/resolve", si.Resolve).Name = "resolve"
	router.GET("/admin/selections", si.PendingSelections).Name = "selections"
	router.POST("/admin/selections", si.ApplySelection).Name = "apply-selection"
}
