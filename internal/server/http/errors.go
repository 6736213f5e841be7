package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/and161185/goph-auth/internal/errs"
)

var setupOnce sync.Once

// usernamePattern allows letters, digits and @/./+/-/_ only.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// setupValidator makes validation errors report json names instead of Go
// struct field names and registers the "username" tag.
func setupValidator() {
	setupOnce.Do(func() {
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
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
	})
}

// bindError converts a ShouldBindJSON failure into a 400 body.
func bindError(err error) errorBody {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return errorBody{Error: "malformed request body"}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return errorBody{Error: "validation failed", Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "nefield":
		return "must differ from the current password"
	case "username":
		return "may contain only letters, numbers, and @/./+/-/_ characters"
	default:
		return "invalid value"
	}
}

// writeError maps service errors to HTTP responses. Anything unrecognized is
// logged and reported as 500 without detail.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrDuplicateIdentity):
		c.JSON(http.StatusBadRequest, errorBody{Error: "Email already exists"})
	case errors.Is(err, errs.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, errorBody{
			Error:  "validation failed",
			Fields: map[string]string{"username": "A user with that username already exists."},
		})
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusBadRequest, errorBody{Error: validationMessage(err)})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorBody{Error: "Invalid credentials"})
	case errors.Is(err, errs.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, errorBody{Error: "Invalid token"})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: "Not found"})
	default:
		s.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// validationMessage returns the detail that follows the ErrValidation prefix.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := errs.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return "invalid input"
}
