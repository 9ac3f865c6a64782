package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"talkio/internal/auth"
	"talkio/internal/telemetry"
)

// AuthHandler manages the credential endpoints: signup, login and token
// verification.
type AuthHandler struct {
	service *auth.Service
	audit   *telemetry.AuditEmitter
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(service *auth.Service, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{service: service, audit: audit}
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req auth.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username, email, and password are required"})
		return
	}

	identity, token, err := h.service.Register(req)
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, auth.ErrConflict):
			h.emitAudit(c, "ERROR", "signup conflict", nil)
			c.JSON(http.StatusConflict, gin.H{"error": "Username or email already exists"})
		default:
			h.emitAudit(c, "ERROR", "signup internal error", nil)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	h.emitAudit(c, "INFO", "user signed up", &identity.Email)
	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": identity.Username,
		"email":    identity.Email,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		EmailOrUsername string `json:"emailOrUsername"`
		Password        string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email/username and password are required"})
		return
	}

	identity, token, err := h.service.Login(req.EmailOrUsername, req.Password)
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.emitAudit(c, "ERROR", "login rejected", nil)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		default:
			h.emitAudit(c, "ERROR", "login internal error", nil)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	h.emitAudit(c, "INFO", "user logged in", &identity.Email)
	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": identity.Username,
		"email":    identity.Email,
	})
}

// Verify handles POST /auth/verify.
func (h *AuthHandler) Verify(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	identity, err := h.service.Verify(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"username": identity.Username, "email": identity.Email})
}

// Test handles GET /auth/test, a liveness probe for the auth routes.
func (h *AuthHandler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Auth routes are working",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) emitAudit(c *gin.Context, level, text string, actor *string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), actor)
}
