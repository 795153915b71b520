package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// NotificationStore is the read side of the notifications table.
type NotificationStore interface {
	ListByUser(ctx context.Context, userID uint64, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID uint64) error
}

type NotificationHandler struct {
	Store NotificationStore
}

func NewNotificationHandler(s NotificationStore) *NotificationHandler {
	return &NotificationHandler{Store: s}
}

// List returns the caller's notifications.  ?unread=true limits the list
// to unread ones.
func (h *NotificationHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	ns, err := h.Store.ListByUser(ctx, uid, c.QueryParam("unread") == "true", parseLimit(c.QueryParam("limit"), 50, 200))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": ns})
}

// MarkRead flags notification :id as read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid notification id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Store.MarkRead(ctx, id, uid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
