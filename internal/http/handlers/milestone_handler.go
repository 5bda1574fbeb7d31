package handlers

import (
	"github.com/Astralabs2050/render-backend-sub000/internal/http/dto"
	"github.com/Astralabs2050/render-backend-sub000/internal/middleware"
	"github.com/Astralabs2050/render-backend-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MilestoneHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewMilestoneHandler(escrowService *services.EscrowService, log *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{escrowService: escrowService, log: log}
}

func (h *MilestoneHandler) CompleteMilestone(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone id"})
	}

	milestone, err := h.escrowService.CompleteMilestone(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: milestone})
}

func (h *MilestoneHandler) ApproveMilestone(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone id"})
	}

	var req dto.ApproveMilestoneRequest
	_ = c.BodyParser(&req) // body optional

	milestone, err := h.escrowService.ApproveMilestone(c.Context(), id, req.TransactionHash, middleware.GetUserID(c))
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: milestone})
}

func (h *MilestoneHandler) DisputeMilestone(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone id"})
	}

	var req dto.DisputeMilestoneRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	milestone, err := h.escrowService.DisputeMilestone(c.Context(), id, req.Reason, middleware.GetUserID(c))
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: milestone})
}
