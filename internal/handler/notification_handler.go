package handler

import (
	"errors"

	"backoffice-notify/internal/dto"
	"backoffice-notify/internal/pkg/logger"
	"backoffice-notify/internal/pkg/serverutils"
	"backoffice-notify/internal/repository"
	"backoffice-notify/internal/service"
	internalWS "backoffice-notify/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type NotificationHandler struct {
	service   service.INotificationService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewNotificationHandler(svc service.INotificationService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		service:   svc,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs upgrades to the per-user push channel. The user is taken from the
// token, which is the channel's server-side filter.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	// Priority 1: Query Param (Browser standard)
	tokenStr := c.Query("token")
	// Priority 2: Authorization Header (Tooling/Non-browser standard)
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c)
	}
	if tokenStr == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')")
	}

	userID, err := serverutils.ParseUserToken(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn("NotificationHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID, h.logger)
		h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

// ListUnread is the snapshot endpoint used by clients on init.
func (h *NotificationHandler) ListUnread(c *fiber.Ctx) error {
	userID, err := serverutils.UserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	query, err := parseListQuery(c)
	if err != nil {
		return err
	}

	notifications, err := h.service.ListUnread(c.UserContext(), userID, query.Limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success get unread notifications", notifications))
}

func (h *NotificationHandler) ListRecent(c *fiber.Ctx) error {
	userID, err := serverutils.UserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	query, err := parseListQuery(c)
	if err != nil {
		return err
	}

	notifications, err := h.service.ListRecent(c.UserContext(), userID, query.Limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success get notifications", notifications))
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := serverutils.UserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	count, err := h.service.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success get unread count", dto.UnreadCountResponse{Count: count}))
}

// MarkAsRead returns the server-confirmed row.
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	userID, err := serverutils.UserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}

	notification, err := h.service.MarkAsRead(c.UserContext(), userID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success mark notification as read", notification))
}

func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	userID, err := serverutils.UserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	count, err := h.service.MarkAllAsRead(c.UserContext(), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success mark all notifications as read", dto.MarkAllAsReadResponse{Count: count}))
}

func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	notif := router.Group("/notifications")
	notif.Use(serverutils.JwtMiddleware(h.jwtSecret))
	notif.Get("/", h.ListRecent)
	notif.Get("/unread", h.ListUnread)
	notif.Get("/unread-count", h.UnreadCount)
	notif.Patch("/read-all", h.MarkAllAsRead)
	notif.Patch("/:id/read", h.MarkAsRead)

	router.Get("/ws", h.ServeWs)
}

func parseListQuery(c *fiber.Ctx) (dto.ListNotificationsQuery, error) {
	var query dto.ListNotificationsQuery
	if err := c.QueryParser(&query); err != nil {
		return query, fiber.NewError(fiber.StatusBadRequest, "Invalid query")
	}
	if err := serverutils.ValidateRequest(query); err != nil {
		return query, err
	}
	return query, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotificationNotFound), errors.Is(err, repository.ErrEntityNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
