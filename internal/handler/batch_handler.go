package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/utils"
)

// BatchHandler accepts uploads for grading and serves batches and their results.
type BatchHandler struct {
	intake        service.IntakeService
	results       service.ResultService
	maxUploadMB   int
	uploadLimiter fiber.Handler
	logger        zerolog.Logger
}

// NewBatchHandler constructs the handler. uploadLimiter may be nil.
func NewBatchHandler(intake service.IntakeService, results service.ResultService, maxUploadMB int, uploadLimiter fiber.Handler, logger zerolog.Logger) *BatchHandler {
	if uploadLimiter == nil {
		uploadLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &BatchHandler{
		intake:        intake,
		results:       results,
		maxUploadMB:   maxUploadMB,
		uploadLimiter: uploadLimiter,
		logger:        logger.With().Str("component", "batch_handler").Logger(),
	}
}

// RegisterAssignmentRoutes attaches batch upload and listing to the assignments group.
func (h *BatchHandler) RegisterAssignmentRoutes(router fiber.Router) {
	router.Get("/:id/batches", h.list)
	router.Post("/:id/batches", h.uploadLimiter, h.create)
}

// Register attaches batch endpoints to the batches group.
func (h *BatchHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
	router.Get("/:id/results", h.listResults)
}

// RegisterResultRoutes attaches result endpoints to the results group.
func (h *BatchHandler) RegisterResultRoutes(router fiber.Router) {
	router.Delete("/:id", h.deleteResult)
}

func (h *BatchHandler) create(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form with files is required")
	}

	files, err := service.ReadUploads(form.File["files"], h.maxUploadMB)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	batchName := ""
	if values := form.Value["batch_name"]; len(values) > 0 {
		batchName = values[0]
	}

	result, err := h.intake.Submit(c.UserContext(), service.IntakeRequest{
		AssignmentID: assignmentID,
		UserID:       middleware.UserID(c),
		BatchName:    batchName,
	}, files)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	accepted := make([]string, 0, len(result.Files))
	for _, file := range result.Files {
		accepted = append(accepted, file.Name)
	}

	requestLogger(h.logger, c).Info().
		Str("batch_id", result.Batch.ID).
		Int("accepted", len(accepted)).
		Str("rejected", strings.Join(result.Warnings, "; ")).
		Msg("batch accepted for grading")

	return utils.SendAccepted(c, "batch accepted for grading", dto.BatchCreateResponse{
		Batch:         dto.NewBatchResponse(result.Batch),
		AcceptedFiles: accepted,
	}, result.Warnings)
}

func (h *BatchHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	batches, err := h.results.ListBatches(c.UserContext(), assignmentID, middleware.UserID(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "batches retrieved", batches)
}

func (h *BatchHandler) get(c *fiber.Ctx) error {
	batch, err := h.results.GetBatch(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "batch retrieved", batch)
}

func (h *BatchHandler) delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.results.DeleteBatch(c.UserContext(), id, middleware.UserID(c)); err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "batch deleted", fiber.Map{"id": id})
}

func (h *BatchHandler) listResults(c *fiber.Ctx) error {
	results, err := h.results.ListResults(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "results retrieved", results)
}

func (h *BatchHandler) deleteResult(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.results.DeleteResult(c.UserContext(), id, middleware.UserID(c)); err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "result deleted", fiber.Map{"id": id})
}
