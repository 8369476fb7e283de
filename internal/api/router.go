// Package api wires the HTTP surface: webhook intake, staff endpoints, the
// chat widget, and the websocket upgrade for realtime updates.
package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/handlers"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/middleware"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/auth"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/conversation"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ingest"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/realtime"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB         *gorm.DB
	Pipeline   *ingest.Pipeline
	Service    *conversation.Service
	Dispatcher events.Dispatcher
	Hub        *realtime.Hub
	Verifier   auth.Verifier
	Logger     *slog.Logger

	// Security configuration
	APIKey         string   // API key for staff endpoints (empty = disabled)
	AllowedOrigins []string // Allowed CORS origins
	RateLimit      float64  // Requests per second per IP (0 = default)
	RateBurst      int      // Burst size for rate limiter (0 = default)
	Production     bool     // Tightens CORS handling
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.SecureHeaders())
	e.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Production))
	e.Use(middleware.RateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger))
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	// Initialize repositories
	mailboxRepo := repository.NewMailboxRepository(cfg.DB)
	conversationRepo := repository.NewConversationRepository(cfg.DB)
	messageRepo := repository.NewMessageRepository(cfg.DB)
	eventRepo := repository.NewEventRepository(cfg.DB)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB)
	webhookHandler := handlers.NewWebhookHandler(cfg.Pipeline, mailboxRepo, cfg.Verifier, cfg.Logger)
	conversationHandler := handlers.NewConversationHandler(cfg.DB, conversationRepo, messageRepo, eventRepo, mailboxRepo, cfg.Service, cfg.Dispatcher, cfg.Logger)
	chatHandler := handlers.NewChatHandler(cfg.DB, mailboxRepo, conversationRepo, messageRepo, cfg.Service, cfg.Dispatcher, cfg.Logger)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// Webhook intake authenticates with the Pub/Sub OIDC token, not the
	// staff API key
	e.POST("/api/webhooks/gmail", webhookHandler.GmailPush)

	// Websocket endpoint for realtime conversation updates
	if cfg.Hub != nil {
		upgrader := realtime.NewSecureUpgrader(cfg.Logger)
		e.GET("/ws", func(c echo.Context) error {
			conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
			if err != nil {
				return err
			}
			client := realtime.NewClient(cfg.Hub, conn, cfg.Logger)
			cfg.Hub.Register(client)
			go client.WritePump()
			go client.ReadPump()
			return nil
		})
	}

	// Chat widget routes are public; visitors have no API key
	chat := e.Group("/api/chat")
	chat.POST("/:mailbox/messages", chatHandler.PostMessage)
	chat.GET("/:mailbox/messages", chatHandler.ListMessages)

	// API routes
	api := e.Group("/api")
	api.Use(middleware.APIKeyAuth(cfg.APIKey, cfg.Logger))

	// Conversation routes
	conversations := api.Group("/conversations")
	conversations.GET("/:slug", conversationHandler.Get)
	conversations.PATCH("/:slug", conversationHandler.Update)
	conversations.GET("/:slug/messages", conversationHandler.ListMessages)
	conversations.GET("/:slug/events", conversationHandler.ListEvents)
	conversations.POST("/:slug/replies", conversationHandler.Reply)
	conversations.DELETE("/:slug/replies/:id", conversationHandler.CancelReply)

	return e
}
