package status

import (
	"errors"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/dataset"
	"listing-harvester/core/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the status views.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the status routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/health", h.HandleHealth)
	app.Get("/checkpoint", h.HandleCheckpoint)
	app.Get("/runs", h.HandleRuns)
	app.Get("/runs/:id", h.HandleRun)
	app.Get("/tables", h.HandleTables)
	if m := h.service.deps.Metrics; m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}
}

// HandleHealth reports that the process is serving.
// @Summary Health
// @Tags status
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleCheckpoint returns harvest progress.
// @Summary Checkpoint
// @Description Per-status counts and the checkpoint entries, optionally filtered.
// @Tags status
// @Produce json
// @Param status query string false "pending, succeeded or failed-permanent"
// @Success 200 {object} CheckpointView
// @Failure 400 {object} map[string]string
// @Router /checkpoint [get]
func (h *Handler) HandleCheckpoint(c *fiber.Ctx) error {
	status := checkpoint.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown status " + string(status)})
	}

	view, err := h.service.Checkpoint(c.Context(), status)
	if err != nil {
		return h.fail(c, "Checkpoint view failed", err)
	}
	return c.JSON(view)
}

// HandleRuns lists run manifests, newest first.
// @Summary Runs
// @Tags status
// @Produce json
// @Success 200 {array} dataset.Manifest
// @Router /runs [get]
func (h *Handler) HandleRuns(c *fiber.Ctx) error {
	runs, err := h.service.Runs(c.Context())
	if err != nil {
		return h.fail(c, "Run list failed", err)
	}
	return c.JSON(runs)
}

// HandleRun returns one run with its stage reports.
// @Summary Run detail
// @Tags status
// @Produce json
// @Param id path string true "Run id or 'latest'"
// @Success 200 {object} RunDetail
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /runs/{id} [get]
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	id := c.Params("id")
	if id != "latest" && !dataset.ValidRunID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid run id"})
	}

	detail, err := h.service.Run(c.Context(), id)
	if dataset.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
	}
	if err != nil {
		return h.fail(c, "Run view failed", err)
	}
	return c.JSON(detail)
}

// HandleTables inspects the destination tables.
// @Summary Destination tables
// @Tags status
// @Produce json
// @Success 200 {array} database.TableInfo
// @Failure 503 {object} map[string]string
// @Router /tables [get]
func (h *Handler) HandleTables(c *fiber.Ctx) error {
	tables, err := h.service.Tables(c.Context())
	if errors.Is(err, ErrNoDatabase) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return h.fail(c, "Table inspection failed", err)
	}
	return c.JSON(tables)
}

func (h *Handler) fail(c *fiber.Ctx, msg string, err error) error {
	logger.WithRayID(h.service.logger, c).Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}
