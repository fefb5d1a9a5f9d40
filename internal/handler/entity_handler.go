package handler

import (
	"backoffice-notify/internal/dto"
	"backoffice-notify/internal/pkg/serverutils"
	"backoffice-notify/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// EntityHandler serves the title lookups clients use for toast copy.
type EntityHandler struct {
	service   service.IEntityService
	jwtSecret string
}

func NewEntityHandler(svc service.IEntityService, jwtSecret string) *EntityHandler {
	return &EntityHandler{service: svc, jwtSecret: jwtSecret}
}

func (h *EntityHandler) TicketTitle(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	title, err := h.service.TicketTitle(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success get ticket title", dto.EntityTitleResponse{ID: id, Title: title}))
}

func (h *EntityHandler) MeetingMinuteTitle(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	title, err := h.service.MeetingMinuteTitle(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success get meeting minute title", dto.EntityTitleResponse{ID: id, Title: title}))
}

func (h *EntityHandler) CommentMeetingMinute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	minuteID, err := h.service.MeetingMinuteIDForComment(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success get comment parent", dto.CommentParentResponse{CommentID: id, MeetingMinuteID: minuteID}))
}

func (h *EntityHandler) RegisterRoutes(router fiber.Router) {
	entities := router.Group("/entities")
	entities.Use(serverutils.JwtMiddleware(h.jwtSecret))
	entities.Get("/tickets/:id/title", h.TicketTitle)
	entities.Get("/meeting-minutes/:id/title", h.MeetingMinuteTitle)
	entities.Get("/comments/:id/meeting-minute", h.CommentMeetingMinute)
}
