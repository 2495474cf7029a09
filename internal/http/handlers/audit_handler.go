package handlers

import (
	"github.com/audit-trail/backend/internal/middleware"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuditHandler struct {
	auditService *services.AuditService
	log          *zap.Logger
}

func NewAuditHandler(auditService *services.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, log: log}
}

// Write records one audit entry. Request context (ip, url, acting user) is
// attached server-side; the caller only supplies the change itself.
func (h *AuditHandler) Write(c *fiber.Ctx) error {
	var entry models.AuditEntry
	if err := c.BodyParser(&entry); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.auditService.Log(c.UserContext(), entry, middleware.GetRequestMeta(c))
	if err != nil {
		h.log.Warn("audit write rejected", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// History lists the audit events of one entity, newest first.
func (h *AuditHandler) History(c *fiber.Ctx) error {
	model := c.Params("model")
	entityID := c.Params("entityId")

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	auditEvents, deltas, err := h.auditService.GetHistory(c.UserContext(), model, entityID, limit, offset)
	if err != nil {
		h.log.Error("failed to load audit history",
			zap.String("model", model),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load history"})
	}

	type eventResponse struct {
		models.AuditEvent
		Deltas []models.AuditDelta `json:"deltas"`
	}

	out := make([]eventResponse, 0, len(auditEvents))
	for _, e := range auditEvents {
		out = append(out, eventResponse{AuditEvent: e, Deltas: deltas[e.ID]})
	}

	return c.JSON(fiber.Map{"events": out})
}
