package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeHealth(t *testing.T, c *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestLiveness(t *testing.T) {
	code, resp := probeHealth(t, NewChecker("1.0.0"), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
}

func TestReadiness(t *testing.T) {
	t.Run("not ready during startup", func(t *testing.T) {
		c := NewChecker("dev").Require("database", PingFunc(ok))
		code, resp := probeHealth(t, c, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, StatusUnhealthy, resp.Checks["startup"].Status)
	})

	t.Run("healthy", func(t *testing.T) {
		c := NewChecker("dev").Require("database", PingFunc(ok)).Optional("redis", PingFunc(ok))
		c.SetReady(true)
		code, resp := probeHealth(t, c, "/health/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusHealthy, resp.Status)
		assert.Len(t, resp.Checks, 2)
	})

	t.Run("optional failure degrades", func(t *testing.T) {
		c := NewChecker("dev").Require("database", PingFunc(ok)).Optional("redis", PingFunc(down))
		c.SetReady(true)
		code, resp := probeHealth(t, c, "/health/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusDegraded, resp.Status)
		assert.Equal(t, "connection refused", resp.Checks["redis"].Message)
	})

	t.Run("required failure is unhealthy", func(t *testing.T) {
		c := NewChecker("dev").Require("database", PingFunc(down)).Optional("redis", PingFunc(ok))
		c.SetReady(true)
		code, resp := probeHealth(t, c, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, StatusUnhealthy, resp.Status)
	})
}
