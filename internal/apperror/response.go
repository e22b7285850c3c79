package apperror

import (
	"github.com/gin-gonic/gin"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// Body renders err as the API error envelope {"error", "message", ...details}.
// Unclassified errors collapse to INTERNAL_ERROR with a generic message.
func Body(err error) (int, gin.H) {
	appErr, ok := As(err)
	if !ok || appErr.Kind == KindInternal {
		return KindInternal.HTTPStatus(), gin.H{
			"error":   CodeInternal,
			"message": "Internal server error",
		}
	}

	body := gin.H{"error": appErr.Code, "message": appErr.Message}
	for k, v := range appErr.Details {
		body[k] = v
	}
	return appErr.Kind.HTTPStatus(), body
}

// Respond writes err to the client, logging internal failures with the request logger
func Respond(c *gin.Context, err error) {
	status, body := Body(err)
	if status >= 500 {
		logging.FromContext(c.Request.Context()).WithError(err).Error("Request failed")
	}
	c.JSON(status, body)
}

// Abort is Respond followed by aborting the handler chain
func Abort(c *gin.Context, err error) {
	Respond(c, err)
	c.Abort()
}
