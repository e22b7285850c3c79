package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
)

// ExtendRequest adds days to a user's activated key
type ExtendRequest struct {
	Days int `json:"days"`
}

// AssignKeyRequest names the key an admin assigns to a user
type AssignKeyRequest struct {
	KeyID int64 `json:"key_id"`
}

// ============================================================================
// DASHBOARD
// ============================================================================

// handleAdminStats returns dashboard counters and the newest accounts
// GET /api/admin/stats
func (s *Server) handleAdminStats(c *gin.Context) {
	dashboard, err := s.licenses.Dashboard(c.Request.Context())
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// ============================================================================
// USERS
// ============================================================================

// handleListUsers lists accounts with their activation state
// GET /api/admin/users?search=&type=&status=&page=&per_page=
func (s *Server) handleListUsers(c *gin.Context) {
	page, err := s.licenses.ListUsers(c.Request.Context(), license.UserQuery{
		Search:  c.Query("search"),
		Type:    c.Query("type"),
		Status:  c.Query("status"),
		Page:    queryInt(c, "page", 1),
		PerPage: queryInt(c, "per_page", 0),
	})
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// handleGetUser returns one account with devices, keys and catalogs
// GET /api/admin/users/:id
func (s *Server) handleGetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := s.licenses.GetUserDetail(c.Request.Context(), id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// handleUpdateUser toggles active/admin flags or resets the password
// PUT /api/admin/users/:id
func (s *Server) handleUpdateUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req auth.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, auth.BindError(err))
		return
	}

	ctx := c.Request.Context()
	user, err := s.authService.UpdateUser(ctx, id, req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	if !user.IsActive || !user.IsAdmin {
		s.hub.DisconnectUser(user.ID)
	}

	summary, err := s.licenses.Summarize(ctx, user, s.licenses.Now())
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleExtendLicense extends the user's activated key
// POST /api/admin/users/:id/extend
func (s *Server) handleExtendLicense(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, auth.BindError(err))
		return
	}

	key, err := s.licenses.Extend(c.Request.Context(), id, req.Days)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("License extended by %d days", req.Days),
		"key":     key,
	})
}

// handleAssignKey force-activates a key for the user
// POST /api/admin/users/:id/assign-key
func (s *Server) handleAssignKey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AssignKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, auth.BindError(err))
		return
	}

	key, err := s.licenses.AssignKey(c.Request.Context(), id, req.KeyID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Key assigned successfully",
		"key":     key,
	})
}

// ============================================================================
// KEYS
// ============================================================================

// handleListKeys lists keys newest first
// GET /api/admin/keys?status=&search=&page=&per_page=
func (s *Server) handleListKeys(c *gin.Context) {
	page, err := s.licenses.ListKeys(c.Request.Context(), license.KeyQuery{
		Status:  c.Query("status"),
		Search:  c.Query("search"),
		Page:    queryInt(c, "page", 1),
		PerPage: queryInt(c, "per_page", 0),
	})
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// handleGenerateKeys creates a batch of keys
// POST /api/admin/keys, POST /api/admin/keys/generate
func (s *Server) handleGenerateKeys(c *gin.Context) {
	var req license.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, auth.BindError(err))
		return
	}

	keys, err := s.licenses.GenerateKeys(c.Request.Context(), auth.CurrentUser(c), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("%d key(s) generated", len(keys)),
		"keys":    keys,
	})
}

// handleGetKey returns one key
// GET /api/admin/keys/:id
func (s *Server) handleGetKey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	key, err := s.licenses.GetKey(c.Request.Context(), id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, key)
}

// handleUpdateKey edits sale metadata, notes, duration or status
// PUT /api/admin/keys/:id
func (s *Server) handleUpdateKey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req license.UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, auth.BindError(err))
		return
	}

	key, err := s.licenses.UpdateKey(c.Request.Context(), id, req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, key)
}

// handleDeleteKey hard-deletes a key
// DELETE /api/admin/keys/:id
func (s *Server) handleDeleteKey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.licenses.DeleteKey(c.Request.Context(), id); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key deleted"})
}
