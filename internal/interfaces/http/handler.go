package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/resilience"
	"showroom_bot/internal/usecases"
)

// WebhookProcessor is the inbound pipeline behind POST /webhook/:tenant.
type WebhookProcessor interface {
	Handle(ctx context.Context, tenantID string, raw []byte) (usecases.Ack, error)
}

type RouterDeps struct {
	Webhook       WebhookProcessor
	Auth          *usecases.AuthUsecase
	Admin         *usecases.AdminUsecase
	Registry      *resilience.Registry
	WhatsApp      *infrastructure.WhatsAppManager
	Middleware    *Middleware
	WebhookSecret string
}

type Handler struct {
	webhook  WebhookProcessor
	registry *resilience.Registry
}

func NewHandler(webhook WebhookProcessor, registry *resilience.Registry) *Handler {
	return &Handler{webhook: webhook, registry: registry}
}

func SetupRoutes(r *gin.Engine, d RouterDeps) {
	h := NewHandler(d.Webhook, d.Registry)
	m := d.Middleware

	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20))
	r.Use(m.CORSMiddleware())

	r.GET("/healthz", h.Health)
	r.POST("/webhook/:tenant", m.RateLimitByParam("tenant", 20, 40), WebhookSignature(d.WebhookSecret), h.HandleWebhook)

	if d.Auth != nil {
		r.POST("/api/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "BAD_REQUEST", "username and password required")
				return
			}
			token, err := d.Auth.Login(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				if !errors.Is(err, usecases.ErrInvalidCredentials) {
					log.Error().Err(err).Msg("Login failed")
				}
				fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	ops := r.Group("/api/ops")
	ops.Use(m.AuthRequired())
	ops.Use(m.AdminRequired())
	ops.Use(m.RateLimitPerUser(5, 10))
	NewOpsHandler(d.Registry, d.WhatsApp, d.Admin).RegisterRoutes(ops)
}

// Health reports liveness and the breaker states.
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.registry != nil {
		resp["circuits"] = h.registry.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleWebhook acknowledges every well-formed delivery with success:true.
// Only malformed payloads get a 400 so the gateway does not retry handled failures.
func (h *Handler) HandleWebhook(c *gin.Context) {
	tenantID := c.Param("tenant")
	if !ValidSlug(tenantID) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "UNKNOWN_TENANT", "message": "invalid tenant"}})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": entities.CodeEmptyPayload, "message": "unreadable body"}})
		return
	}

	ack, err := h.webhook.Handle(c.Request.Context(), tenantID, body)
	if err != nil {
		var nerr *entities.NormalizationError
		if errors.As(err, &nerr) {
			log.Debug().Str("tenant", tenantID).Str("code", nerr.Code).Msg("Webhook payload rejected")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": nerr.Code, "message": nerr.Error()}})
			return
		}
		log.Error().Err(err).Str("tenant", tenantID).Msg("Webhook processing failed")
		ack = usecases.Ack{Status: usecases.StatusFailed}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": ack})
}
