package handler

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/service"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend host list is final
		return true
	},
}

// GET /ws — live feed of every gateway event (global broadcast target).
func WebSocketBroadcast(b *bus.Bus) echo.HandlerFunc {
	return func(c echo.Context) error {
		return attach(c, b, event.GlobalTarget)
	}
}

// GET /ws/me — live feed scoped to the authenticated agent's target.
func WebSocketAgent(b *bus.Bus) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, ok := c.Get("user_claims").(*service.Claims)
		if !ok || claims == nil {
			return ErrorResponse(c, http.StatusUnauthorized, "Authentication required", "UNAUTHORIZED", "")
		}
		return attach(c, b, event.AgentTarget(claims.UserID))
	}
}

func attach(c echo.Context, b *bus.Bus, target string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return err
	}

	client := ws.NewClient(conn, b, target)
	log.Printf("ws: client subscribed to %s", target)

	go client.WritePump()
	go client.ReadPump()

	return nil
}
