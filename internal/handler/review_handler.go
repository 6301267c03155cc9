package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/expertiza/review-eval-api/internal/dto"
	"github.com/expertiza/review-eval-api/internal/service"
	"github.com/expertiza/review-eval-api/internal/utils"
	"github.com/expertiza/review-eval-api/pkg/llm"
)

// ReviewHandler exposes the review lifecycle endpoints.
type ReviewHandler struct {
	service   service.ReviewService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service service.ReviewService, validator *validator.Validate, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Post("/:id/accept", h.accept)
	router.Post("/:id/trigger", h.trigger)
}

// RegisterEvaluations wires the synchronous evaluation endpoint.
func (h *ReviewHandler) RegisterEvaluations(router fiber.Router) {
	router.Post("", h.evaluate)
}

func (h *ReviewHandler) create(c *fiber.Ctx) error {
	var payload dto.ReviewSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Ingest(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "review accepted", response)
}

func (h *ReviewHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review retrieved", response)
}

func (h *ReviewHandler) accept(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.FinalizeReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Finalize(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review finalized", response)
}

func (h *ReviewHandler) trigger(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Trigger(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "evaluation scheduled", fiber.Map{"review_id": id})
}

func (h *ReviewHandler) evaluate(c *fiber.Ctx) error {
	var payload dto.DirectEvaluationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	output, err := h.service.EvaluateDirect(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review evaluated", output)
}

func (h *ReviewHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	var exhausted *service.ExhaustedError
	var transport *llm.TransportError

	switch {
	case errors.Is(err, service.ErrReviewNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "review not found")
	case errors.Is(err, service.ErrEmptyReview):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "review content cannot be empty")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, validationErrors.Error())
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrSchedulerClosed):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "evaluation queue unavailable")
	case errors.As(err, &exhausted):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &transport), errors.Is(err, llm.ErrEmptyResponse):
		return utils.SendError(c, fiber.StatusBadGateway, "llm provider unavailable")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("review operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
