package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
)

var (
	registerOnce sync.Once
	emailCheck   = validator.New()
)

// RegisterValidators installs the keycode and platform tags on gin's validator
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("keycode", func(fl validator.FieldLevel) bool {
			return license.ValidCode(license.NormalizeCode(fl.Field().String()))
		})
		_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
			switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
			case "", database.PlatformAndroid, database.PlatformWeb:
				return true
			}
			return false
		})
	})
}

// BindError converts a gin binding failure into an API error.
// A malformed key code is reported as INVALID_KEY rather than a validation error.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Invalid("Invalid request body")
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "keycode":
		return license.ErrInvalidKey
	case "required":
		return apperror.Invalid(fmt.Sprintf("%s is required", field))
	case "platform":
		return apperror.Invalid("platform must be 'android' or 'web'")
	default:
		return apperror.Invalid(fmt.Sprintf("%s is invalid", field))
	}
}

// NormalizeEmail trims and lowercases an address and checks its format
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.Invalid("email is required")
	}
	if err := emailCheck.Var(email, "email"); err != nil {
		return "", apperror.Invalid("Invalid email format")
	}
	return email, nil
}
