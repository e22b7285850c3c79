package license

import "github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"

var (
	ErrInvalidKey          = apperror.NotFound("INVALID_KEY", "Invalid activation key")
	ErrKeyAlreadyActivated = apperror.Conflict("KEY_ALREADY_ACTIVATED", "This key has already been activated")
	ErrKeyRevoked          = apperror.Conflict("KEY_REVOKED", "This key has been revoked")
	ErrKeyInvalidState     = apperror.Validation("KEY_INVALID_STATE", "This key cannot be activated")
	ErrActiveKeyExists     = apperror.Conflict("ACTIVE_KEY_EXISTS", "An activation key is already active on this account")
	ErrNoActivatedKey      = apperror.NotFound("NO_ACTIVATED_KEY", "User has no activated key")
	ErrKeyNotFound         = apperror.NotFound("KEY_NOT_FOUND", "Key not found")
	ErrUserNotFound        = apperror.NotFound("USER_NOT_FOUND", "User not found")
	ErrInvalidTransition   = apperror.Conflict("INVALID_TRANSITION", "Only available keys can be marked as sold")
	ErrTrialAlreadyUsed    = apperror.Conflict("TRIAL_ALREADY_USED", "Trial period already used on this device").
				WithDetail("trial_used", true)
)
