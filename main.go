package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/lgustavoss/dx-connect-backend-sub001/config"
	"github.com/lgustavoss/dx-connect-backend-sub001/database"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/gateway"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/handler"
	customMiddleware "github.com/lgustavoss/dx-connect-backend-sub001/internal/middleware"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/service"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/transport"
)

func main() {

	// Load .env (ignore error when the file is missing, e.g. production)
	_ = godotenv.Load()

	cfg := config.Load()
	settings := config.LoadWhatsAppSettings()

	if cfg.DBConnectionString == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	database.InitAppDB(cfg.DBConnectionString)

	// Whatsmeow device store, same server unless overridden
	transportDbURL := cfg.TransportDBURL
	if transportDbURL == "" {
		transportDbURL = cfg.DBConnectionString
	}
	database.InitWhatsmeow(transportDbURL)

	if cfg.JWTSecret == "" {
		log.Println("JWT_SECRET is not set")
	}
	service.InitAuthConfig(cfg.JWTSecret)

	store := model.NewStore(database.AppDB)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatal("Failed to ensure schema: ", err)
	}

	// Event bus + gateway wiring
	eventBus := bus.New()
	defer eventBus.Close()

	channel := transport.NewWhatsmeow(settings, database.Container)
	gw := gateway.New(gateway.Config{
		DeviceName:       settings.DeviceName,
		ReconnectBackoff: time.Duration(settings.ReconnectBackoffSeconds) * time.Second,
	}, store, channel, eventBus)

	if settings.Enabled {
		status := gw.Start(context.Background())
		log.Printf("whatsapp session starting, state=%s", status.State)
	} else {
		log.Println("whatsapp disabled (set WHATSAPP_ENABLED=true to enable)")
	}

	// Outbound webhook notifier, optional
	notifier := service.NewWebhookNotifier(os.Getenv("WEBHOOK_URL"), os.Getenv("WEBHOOK_SECRET"))
	notifier.Start(eventBus)
	defer notifier.Stop()

	// Setup Echo
	e := echo.New()
	e.Use(middleware.Recover())

	allowOrigins := strings.Split(cfg.CORSAllowOrigins, ",")
	for i, o := range allowOrigins {
		allowOrigins[i] = strings.TrimSpace(o)
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.PUT,
			echo.PATCH,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		AllowCredentials: true,
	}))

	rateLimit := getEnvAsInt("RATE_LIMIT_PER_SECOND", 10)
	rateBurst := getEnvAsInt("RATE_LIMIT_BURST", 10)
	rateWindow := getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 3)

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rateLimit),
				Burst:     rateBurst,
				ExpiresIn: time.Duration(rateWindow) * time.Minute,
			},
		),
	}))

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		message := "Internal Server Error"

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
		response := map[string]interface{}{
			"success": false,
			"error":   message,
		}
		switch code {
		case http.StatusUnauthorized:
			response["message"] = "Authentication required. Please login first."
		case http.StatusMethodNotAllowed:
			response["message"] = "Method not allowed for this endpoint"
		case http.StatusNotFound:
			response["message"] = "Endpoint not found"
		}

		_ = c.JSON(code, response)
	}

	// Health check
	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"success": true,
			"message": "DX Connect gateway is running",
			"version": "1.0.0",
		})
	})

	// Routes behind JWT
	api := e.Group("/api", customMiddleware.JWTAuthMiddleware())

	api.POST("/whatsapp/start", handler.StartSession(gw))
	api.POST("/whatsapp/stop", handler.StopSession(gw))
	api.GET("/whatsapp/status", handler.GetStatus(gw))
	api.POST("/whatsapp/send", handler.SendMessage(gw))
	api.POST("/whatsapp/events", handler.IngestEvent(gw))

	api.GET("/chats/:chatId/messages", handler.ListChatMessages(store))

	// Live event feeds
	api.GET("/ws", handler.WebSocketBroadcast(eventBus))
	api.GET("/ws/me", handler.WebSocketAgent(eventBus))

	log.Printf("Server starting on port %s", cfg.Port)

	// bind to every interface, not only 127.0.0.1
	log.Fatal(e.Start(":" + cfg.Port))
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return fallback
	}
	return n
}
