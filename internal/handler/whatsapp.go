package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/gateway"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/service"
)

// Request body for send message
type SendMessageRequest struct {
	To              string `json:"to"`
	Kind            string `json:"kind"`
	Body            string `json:"body"`
	ClientMessageID string `json:"client_message_id"`
}

// POST /api/whatsapp/start
func StartSession(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := gw.Start(c.Request().Context())
		return SuccessResponse(c, http.StatusAccepted, "Session starting", status)
	}
}

// POST /api/whatsapp/stop
func StopSession(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		gw.Stop(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	}
}

// GET /api/whatsapp/status
func GetStatus(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		return SuccessResponse(c, http.StatusOK, "Current session status", gw.Status())
	}
}

// POST /api/whatsapp/send
func SendMessage(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req SendMessageRequest
		if err := c.Bind(&req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}

		if req.Kind == "" {
			req.Kind = string(model.KindText)
		}

		var agentID int64
		if claims, ok := c.Get("user_claims").(*service.Claims); ok && claims != nil {
			agentID = claims.UserID
		}

		msg, err := gw.Send(c.Request().Context(), gateway.SendRequest{
			AgentID:         agentID,
			To:              req.To,
			Kind:            model.MessageKind(req.Kind),
			Body:            req.Body,
			ClientMessageID: req.ClientMessageID,
		})
		if err != nil {
			switch {
			case gateway.IsInvalidArgument(err):
				return ErrorResponse(c, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR", "")
			case errors.Is(err, gateway.ErrSessionNotReady):
				return ErrorResponse(c, http.StatusLocked, "WhatsApp session is not ready", "SESSION_NOT_READY",
					"Start the session and retry once it reports ready")
			default:
				return ErrorResponse(c, http.StatusInternalServerError, "Failed to send message", "SEND_FAILED", err.Error())
			}
		}

		return SuccessResponse(c, http.StatusOK, "Message accepted", map[string]interface{}{
			"messageId": msg.ID,
			"status":    msg.Status,
			"to":        msg.ChatID,
			"createdAt": msg.CreatedAt,
		})
	}
}

// POST /api/whatsapp/events — administrative injection of inbound
// events, same path the transport callbacks use internally.
func IngestEvent(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var raw map[string]interface{}
		if err := c.Bind(&raw); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}

		msg, err := gw.Ingest(c.Request().Context(), raw)
		if err != nil {
			if gateway.IsInvalidPayload(err) {
				return ErrorResponse(c, http.StatusBadRequest, err.Error(), "INVALID_PAYLOAD", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to ingest event", "INGEST_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Event ingested", msg)
	}
}

// GET /api/chats/:chatId/messages
func ListChatMessages(store *model.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		chatID := c.Param("chatId")
		if chatID == "" {
			return ErrorResponse(c, http.StatusBadRequest, "chatId is required", "VALIDATION_ERROR", "")
		}

		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		messages, err := store.ListMessagesByChat(c.Request().Context(), chatID, limit)
		if err != nil {
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to list messages", "DB_ERROR", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Chat messages", messages)
	}
}
