package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
)

// ActivateRequest carries a key code to redeem
type ActivateRequest struct {
	KeyCode string `json:"key_code" binding:"required,keycode"`
}

// CheckDeviceRequest asks whether a device already consumed its trial
type CheckDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Platform string `json:"platform"`
}

// handleActivationStatus returns the caller's entitlement
// GET /api/activation/status
func (s *Server) handleActivationStatus(c *gin.Context) {
	status, err := s.licenses.Status(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleActivate redeems a key for the caller
// POST /api/activation/activate
func (s *Server) handleActivate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		err = auth.BindError(err)
		s.observeRedemption(err)
		apperror.Respond(c, err)
		return
	}

	key, err := s.licenses.Redeem(c.Request.Context(), auth.CurrentUser(c), req.KeyCode)
	s.observeRedemption(err)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Key activated successfully",
		"activation": license.Redeemed(key),
	})
}

func (s *Server) observeRedemption(err error) {
	if s.metrics != nil {
		s.metrics.ObserveRedemption(err)
	}
}

// handleCheckDevice reports whether a device has used its trial. No auth.
// POST /api/activation/check-device
func (s *Server) handleCheckDevice(c *gin.Context) {
	var req CheckDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, auth.BindError(err))
		return
	}

	used, err := s.licenses.Trials().CheckDeviceUsed(c.Request.Context(), req.DeviceID, req.Platform)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trial_used": used})
}
