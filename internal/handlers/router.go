package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/middleware"
)

// NewRouter builds the admin API: conversion runs, health checks and metrics
func NewRouter(serviceName string, conversions *ConversionHandler, checker *health.Checker, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, serviceName))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	conversions.Register(e.Group("/api/v1/conversions"))
	return e
}
