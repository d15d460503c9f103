package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/usecases"
)

const testJWTSecret = "test-secret"

type fakeWebhook struct {
	handle func(ctx context.Context, tenantID string, raw []byte) (usecases.Ack, error)
	calls  int
}

func (f *fakeWebhook) Handle(ctx context.Context, tenantID string, raw []byte) (usecases.Ack, error) {
	f.calls++
	return f.handle(ctx, tenantID, raw)
}

func newTestRouter(webhook WebhookProcessor, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, RouterDeps{
		Webhook:       webhook,
		Middleware:    NewMiddleware(testJWTSecret),
		WebhookSecret: secret,
	})
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(&fakeWebhook{}, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestHandleWebhook_Processed(t *testing.T) {
	fw := &fakeWebhook{handle: func(_ context.Context, tenantID string, raw []byte) (usecases.Ack, error) {
		assert.Equal(t, "showroom-a", tenantID)
		assert.JSONEq(t, `{"event":"message"}`, string(raw))
		return usecases.Ack{Status: usecases.StatusProcessed, LeadID: 7, UserType: "customer"}, nil
	}}
	r := newTestRouter(fw, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/showroom-a", strings.NewReader(`{"event":"message"}`)))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, usecases.StatusProcessed, data["status"])
	assert.EqualValues(t, 7, data["leadId"])
	assert.Equal(t, 1, fw.calls)
}

func TestHandleWebhook_NormalizationErrorIs400(t *testing.T) {
	fw := &fakeWebhook{handle: func(context.Context, string, []byte) (usecases.Ack, error) {
		return usecases.Ack{}, &entities.NormalizationError{Code: entities.CodeMissingSender}
	}}
	r := newTestRouter(fw, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/showroom-a", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, entities.CodeMissingSender, body["error"].(map[string]any)["code"])
}

func TestHandleWebhook_InternalErrorStillAcknowledged(t *testing.T) {
	fw := &fakeWebhook{handle: func(context.Context, string, []byte) (usecases.Ack, error) {
		return usecases.Ack{}, assert.AnError
	}}
	r := newTestRouter(fw, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/showroom-a", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, usecases.StatusFailed, body["data"].(map[string]any)["status"])
}

func TestHandleWebhook_InvalidTenant(t *testing.T) {
	fw := &fakeWebhook{}
	r := newTestRouter(fw, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/bad$tenant", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, fw.calls)
}

func TestHandleWebhook_Signature(t *testing.T) {
	fw := &fakeWebhook{handle: func(context.Context, string, []byte) (usecases.Ack, error) {
		return usecases.Ack{Status: usecases.StatusDuplicate}, nil
	}}
	r := newTestRouter(fw, "hook-secret")
	payload := `{"event":"message"}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/showroom-a", strings.NewReader(payload))
	req.Header.Set("X-Signature", "sha256=deadbeef")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, fw.calls)

	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write([]byte(payload))
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook/showroom-a", strings.NewReader(payload))
	req.Header.Set("X-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fw.calls)
}

func signedToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return s
}

func TestOpsRoutes_Auth(t *testing.T) {
	r := newTestRouter(&fakeWebhook{}, "")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"non-admin role", "Bearer " + signedToken(t, "staff"), http.StatusForbidden},
		{"admin", "Bearer " + signedToken(t, "admin"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/ops/circuits", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestOpsRoutes_WhatsAppDisabled(t *testing.T) {
	r := newTestRouter(&fakeWebhook{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ops/whatsapp/showroom-a/status", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "admin"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimitByParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(testJWTSecret)
	r := gin.New()
	r.GET("/t/:tenant", m.RateLimitByParam("tenant", 0, 1), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, do("/t/a"))
	assert.Equal(t, http.StatusTooManyRequests, do("/t/a"))
	assert.Equal(t, http.StatusNoContent, do("/t/b"))
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidSlug("showroom_a-1"))
	assert.False(t, ValidSlug("a b"))
	assert.False(t, ValidSlug(""))
	assert.True(t, ValidConfigKey("persona_prompt"))
	assert.False(t, ValidConfigKey("persona-prompt"))
	assert.Equal(t, "halo", SanitizeString(" ha\x00lo "))
	assert.Equal(t, "ab", TruncateString("abé", 3))
	assert.True(t, ValidPhone("6281234567890"))
	assert.False(t, ValidPhone("0812"))
	assert.False(t, ValidPhone("62812abc4567"))
}

func TestSignatureMatches(t *testing.T) {
	key := []byte("k")
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("body"))
	sum := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, signatureMatches(key, []byte("body"), sum))
	assert.True(t, signatureMatches(key, []byte("body"), "sha256="+sum))
	assert.False(t, signatureMatches(key, []byte("other"), sum))
	assert.False(t, signatureMatches(key, []byte("body"), ""))
	assert.False(t, signatureMatches(key, []byte("body"), "not-hex"))
}

func TestAuthRequired_RejectsTokenWithoutExpiry(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1, "role": "admin"})
	s, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	r := newTestRouter(&fakeWebhook{}, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ops/circuits", nil)
	req.Header.Set("Authorization", "Bearer "+s)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
