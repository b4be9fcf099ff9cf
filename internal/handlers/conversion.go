package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RunStarter starts conversion runs
type RunStarter interface {
	Start(ctx context.Context, req batch.RunRequest) (*models.ConversionRun, error)
	Running() bool
}

// RunReader reads run history
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConversionRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.ConversionRun, error)
	ListErrors(ctx context.Context, id uuid.UUID, kind models.ErrorKind) ([]models.ErrorEntry, error)
}

// ConversionHandler handles the conversion run endpoints
type ConversionHandler struct {
	runner RunStarter
	runs   RunReader
	logger ectologger.Logger
}

// NewConversionHandler creates a new conversion handler
func NewConversionHandler(runner RunStarter, runs RunReader, logger ectologger.Logger) *ConversionHandler {
	return &ConversionHandler{
		runner: runner,
		runs:   runs,
		logger: logger,
	}
}

// StartRunResponse is returned when a run is accepted
type StartRunResponse struct {
	RunID  uuid.UUID        `json:"run_id"`
	Status models.RunStatus `json:"status"`
}

// Register registers conversion routes
func (h *ConversionHandler) Register(g *echo.Group) {
	g.POST("", h.Start)
	g.GET("", h.List)
	g.GET("/:id", h.GetByID)
	g.GET("/:id/errors", h.ListErrors)
}

// Start starts an asynchronous run
func (h *ConversionHandler) Start(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConversionHandler.Start")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req batch.RunRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil && !errors.Is(err, io.EOF) {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest("partitions must be between 0 and 256")
	}

	run, err := h.runner.Start(ctx, req)
	if errors.Is(err, batch.ErrRunInProgress) {
		return Conflict("a conversion run is already in progress")
	}
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to start conversion run")
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":      run.ID,
		"partitions":  run.Partitions,
		"full_reload": run.FullReload,
	}).Info("Accepted conversion run")
	return AcceptedResponse(c, StartRunResponse{RunID: run.ID, Status: run.Status})
}

// List returns recent runs
func (h *ConversionHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConversionHandler.List")
	defer span.End()

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return BadRequest("limit must be a positive integer")
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(ctx, limit)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list conversion runs")
		return err
	}
	return SuccessResponse(c, map[string]any{
		"running": h.runner.Running(),
		"runs":    runs,
	})
}

// GetByID returns a run with its summary
func (h *ConversionHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConversionHandler.GetByID")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, run)
}

// ListErrors returns the error entries of a run, optionally filtered by ?kind=
func (h *ConversionHandler) ListErrors(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConversionHandler.ListErrors")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	kind := models.ErrorKind(c.QueryParam("kind"))
	switch kind {
	case "", models.ErrorKindValidation, models.ErrorKindNotFound, models.ErrorKindUpstream, models.ErrorKindUnexpected:
	default:
		return BadRequest("unknown error kind " + strconv.Quote(string(kind)))
	}

	if _, err := h.runs.GetByID(ctx, id); err != nil {
		return err
	}

	entries, err := h.runs.ListErrors(ctx, id, kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
