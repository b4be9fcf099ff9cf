package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/metrics"
)

// Logger logs every request and records it in the HTTP metrics under service.
// Health and scrape routes log at debug so they do not drown out run traffic.
func Logger(logger ectologger.Logger, service string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			metrics.RecordHTTPRequest(service, req.Method, strconv.Itoa(res.Status), elapsed.Seconds())

			entry := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":    GetRequestID(req.Context()),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         c.Path(),
				"remote_ip":     c.RealIP(),
				"response_time": elapsed,
				"response_size": res.Size,
			})

			switch {
			case res.Status >= 500:
				entry.Error("Request")
			case isQuietRoute(c.Path()):
				entry.Debug("Request")
			default:
				entry.Info("Request")
			}
			return nil
		}
	}
}

func isQuietRoute(route string) bool {
	return route == "/metrics" || strings.HasPrefix(route, "/health/")
}
