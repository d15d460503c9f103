package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/resilience"
	"showroom_bot/internal/usecases"
)

// OpsHandler serves the operator-facing admin API.
type OpsHandler struct {
	registry  *resilience.Registry
	waManager *infrastructure.WhatsAppManager
	admin     *usecases.AdminUsecase
}

func NewOpsHandler(registry *resilience.Registry, waManager *infrastructure.WhatsAppManager, admin *usecases.AdminUsecase) *OpsHandler {
	return &OpsHandler{registry: registry, waManager: waManager, admin: admin}
}

func (h *OpsHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/circuits", h.GetCircuits)

	wa := g.Group("/whatsapp/:tenant")
	wa.Use(tenantParam())
	{
		wa.GET("/status", h.GetWhatsAppStatus)
		wa.GET("/qr", h.GetWhatsAppQR)
		wa.POST("/connect", h.ConnectWhatsApp)
		wa.POST("/logout", h.LogoutWhatsApp)
	}

	if h.admin == nil {
		return
	}
	g.POST("/tenants", h.ProvisionTenant)
	t := g.Group("/tenants/:tenant")
	t.Use(tenantParam())
	{
		t.GET("/config", h.GetConfigs)
		t.PUT("/config", h.SetConfig)
		t.GET("/staff", h.ListStaff)
		t.POST("/staff", h.AddStaff)
		t.PUT("/staff/:id/status", h.SetStaffStatus)
		t.POST("/inventory/import", h.ImportInventory)
		t.GET("/inventory/summary", h.InventorySummary)
	}
	g.GET("/usage/:tenant", tenantParam(), h.GetUsage)
}

func tenantParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ValidSlug(c.Param("tenant")) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant"})
			return
		}
		c.Next()
	}
}

// respondError maps the error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var verr *entities.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, entities.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, entities.ErrDependencyUnavailable), errors.Is(err, entities.ErrDependencyTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Ops request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// GetCircuits returns the state of every dependency breaker.
func (h *OpsHandler) GetCircuits(c *gin.Context) {
	if h.registry == nil {
		c.JSON(http.StatusOK, []entities.CircuitState{})
		return
	}
	c.JSON(http.StatusOK, h.registry.Snapshot())
}

func (h *OpsHandler) whatsappEnabled(c *gin.Context) bool {
	if h.waManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WhatsApp not configured"})
		return false
	}
	return true
}

func (h *OpsHandler) GetWhatsAppStatus(c *gin.Context) {
	if !h.whatsappEnabled(c) {
		return
	}
	client := h.waManager.GetClient(c.Param("tenant"))
	if client == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "initialized": false})
		return
	}
	phone, name := client.GetUserInfo()
	c.JSON(http.StatusOK, gin.H{
		"connected":   client.IsConnected(),
		"loggedIn":    client.IsLoggedIn(),
		"initialized": true,
		"phone":       phone,
		"name":        name,
		"hasQR":       client.GetQR() != "",
	})
}

// GetWhatsAppQR returns the pairing code as a PNG.
func (h *OpsHandler) GetWhatsAppQR(c *gin.Context) {
	if !h.whatsappEnabled(c) {
		return
	}
	tenantID := c.Param("tenant")
	client, err := h.waManager.ConnectClient(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	code := client.GetQR()
	if code == "" {
		if client.IsLoggedIn() {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *OpsHandler) ConnectWhatsApp(c *gin.Context) {
	if !h.whatsappEnabled(c) {
		return
	}
	client, err := h.waManager.ConnectClient(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		respondError(c, err)
		return
	}
	phone, name := client.GetUserInfo()
	c.JSON(http.StatusOK, gin.H{
		"status":    "connecting",
		"connected": client.IsLoggedIn(),
		"phone":     phone,
		"name":      name,
	})
}

func (h *OpsHandler) LogoutWhatsApp(c *gin.Context) {
	if !h.whatsappEnabled(c) {
		return
	}
	if err := h.waManager.LogoutClient(c.Request.Context(), c.Param("tenant")); err != nil {
		log.Warn().Err(err).Str("tenant", c.Param("tenant")).Msg("WhatsApp logout warning")
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *OpsHandler) ProvisionTenant(c *gin.Context) {
	var req struct {
		entities.Tenant
		OwnerName string `json:"owner_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	req.DisplayName = TruncateString(SanitizeString(req.DisplayName), MaxTitleLength)
	if err := h.admin.ProvisionTenant(c.Request.Context(), req.Tenant, SanitizeString(req.OwnerName)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "provisioned", "tenant": req.ID})
}

func (h *OpsHandler) GetConfigs(c *gin.Context) {
	configs, err := h.admin.GetAllConfigs(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (h *OpsHandler) SetConfig(c *gin.Context) {
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !ValidConfigKey(req.Key) || len(req.Value) > MaxConfigValLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.admin.SetConfig(c.Request.Context(), c.Param("tenant"), req.Key, SanitizeString(req.Value)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (h *OpsHandler) ListStaff(c *gin.Context) {
	staff, err := h.admin.ListStaff(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, staff)
}

func (h *OpsHandler) AddStaff(c *gin.Context) {
	var rec entities.StaffRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	rec.TenantID = c.Param("tenant")
	rec.Name = TruncateString(SanitizeString(rec.Name), MaxTitleLength)
	rec.Phone = usecases.ExtractPhone(rec.Phone)
	if !ValidPhone(rec.Phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone"})
		return
	}
	if rec.AltPhone != "" {
		if rec.AltPhone = usecases.ExtractPhone(rec.AltPhone); !ValidPhone(rec.AltPhone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alt_phone"})
			return
		}
	}
	if err := h.admin.AddStaff(c.Request.Context(), &rec); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *OpsHandler) SetStaffStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid staff id"})
		return
	}
	var req struct {
		Status entities.StaffStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.admin.SetStaffStatus(c.Request.Context(), c.Param("tenant"), id, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

// ImportInventory accepts a multipart "file" field with the CSV sheet.
func (h *OpsHandler) ImportInventory(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CSV file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read file"})
		return
	}
	defer f.Close()

	n, err := h.admin.ImportInventory(c.Request.Context(), c.Param("tenant"), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func (h *OpsHandler) InventorySummary(c *gin.Context) {
	summary, err := h.admin.InventorySummary(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *OpsHandler) GetUsage(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	summary, err := h.admin.Usage(c.Request.Context(), c.Param("tenant"), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
