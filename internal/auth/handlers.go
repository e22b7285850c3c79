package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
)

// Handlers contains the auth HTTP handlers
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service) *Handlers {
	RegisterValidators()
	return &Handlers{service: service}
}

// RegisterRoutes mounts /register, /login, /refresh, /logout and the
// authenticated /me on group
func (h *Handlers) RegisterRoutes(group *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	group.POST("/register", h.Register)
	group.POST("/login", h.Login)
	group.POST("/refresh", h.Refresh)
	group.POST("/logout", h.Logout)
	group.GET("/me", authMiddleware, h.Me)
}

// Register handles user registration
// POST /api/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, BindError(err))
		return
	}

	response, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

// Login handles user login
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, BindError(err))
		return
	}

	response, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Me returns the current account
// GET /api/auth/me
func (h *Handlers) Me(c *gin.Context) {
	response, err := h.service.Me(c.Request.Context(), CurrentUser(c))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Refresh handles token refresh
// POST /api/auth/refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	// the body is optional when the token comes as a Bearer header
	_ = c.ShouldBindJSON(&req)
	token := req.RefreshToken
	if token == "" {
		token = bearerToken(c)
	}

	response, err := h.service.Refresh(c.Request.Context(), token)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Logout revokes the refresh token
// POST /api/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, BindError(err))
		return
	}

	if err := h.service.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}
