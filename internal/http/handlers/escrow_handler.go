package handlers

import (
	"errors"
	"strconv"

	"github.com/Astralabs2050/render-backend-sub000/internal/http/dto"
	"github.com/Astralabs2050/render-backend-sub000/internal/middleware"
	"github.com/Astralabs2050/render-backend-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
	statsService  *services.StatsService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService *services.EscrowService, statsService *services.StatsService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, statsService: statsService, log: log}
}

// statusFromErr maps business error kinds onto HTTP statuses.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrStateConflict):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvariantViolation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrSettlement):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *EscrowHandler) CreateEscrow(c *fiber.Ctx) error {
	var req dto.CreateEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	makerID, err := uuid.Parse(req.MakerID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid maker_id"})
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid total_amount"})
	}

	in := services.CreateEscrowInput{
		CreatorID:   middleware.GetUserID(c),
		MakerID:     makerID,
		TotalAmount: total,
	}
	for _, ms := range req.Milestones {
		pct, err := decimal.NewFromString(ms.Percentage)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone percentage"})
		}
		in.Milestones = append(in.Milestones, services.MilestoneSpec{
			Name:        ms.Name,
			Description: ms.Description,
			Percentage:  pct,
			DueDate:     ms.DueDate,
		})
	}
	if req.NFTID != nil {
		id, err := uuid.Parse(*req.NFTID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid nft_id"})
		}
		in.NFTID = &id
	}
	if req.ChatID != nil {
		id, err := uuid.Parse(*req.ChatID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid chat_id"})
		}
		in.ChatID = &id
	}

	escrow, err := h.escrowService.CreateEscrow(c.Context(), in)
	if err != nil {
		h.log.Warn("create escrow failed", zap.Error(err))
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) GetEscrow(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	escrow, err := h.escrowService.GetEscrow(c.Context(), id)
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) ListEscrows(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	var (
		escrows any
		err     error
	)
	switch c.Query("role") {
	case "maker":
		escrows, err = h.escrowService.FindByMaker(c.Context(), userID, limit, offset)
	default:
		escrows, err = h.escrowService.FindByCreator(c.Context(), userID, limit, offset)
	}
	if err != nil {
		h.log.Error("list escrows failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: escrows})
}

func (h *EscrowHandler) FundEscrow(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	var req dto.FundEscrowRequest
	if err := c.BodyParser(&req); err != nil || req.TransactionHash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "transaction_hash is required"})
	}

	escrow, err := h.escrowService.FundEscrow(c.Context(), id, req.TransactionHash, middleware.GetUserID(c))
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) CancelEscrow(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	var req dto.CancelEscrowRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	escrow, err := h.escrowService.CancelEscrow(c.Context(), id, req.Reason, middleware.GetUserID(c))
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) GetStats(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	stats, err := h.statsService.GetStats(c.Context(), id)
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: stats})
}

func (h *EscrowHandler) GetEscrowEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	entries, err := h.escrowService.GetEscrowEvents(c.Context(), id)
	if err != nil {
		h.log.Error("get escrow events failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

func (h *EscrowHandler) GetBalanceByChat(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("chatId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid chat id"})
	}

	snapshot, err := h.statsService.GetBalanceByChat(c.Context(), chatID)
	if err != nil {
		return c.Status(statusFromErr(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: snapshot})
}
