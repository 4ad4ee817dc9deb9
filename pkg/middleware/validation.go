package middleware

import (
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/wms-platform/lot-ledger/pkg/errors"
)

var validateOnce sync.Once

var (
	batchCodeRegex  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,63}$`)
	movementTypeSet = map[string]bool{"ENTRY": true, "SALE": true, "EXIT": true, "EXPIRATION": true}
)

// InitValidator registers the ledger validators on Gin's binding engine
func InitValidator() {
	validateOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			register(v)
		}
	})
}

func register(v *validator.Validate) {
	_ = v.RegisterValidation("batch_code", validateBatchCode)
	_ = v.RegisterValidation("movement_type", validateMovementType)
	_ = v.RegisterValidation("decimal", validateDecimal)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

func validateBatchCode(fl validator.FieldLevel) bool {
	return batchCodeRegex.MatchString(fl.Field().String())
}

func validateMovementType(fl validator.FieldLevel) bool {
	return movementTypeSet[strings.ToUpper(strings.TrimSpace(fl.Field().String()))]
}

var decimalRegex = regexp.MustCompile(`^\d+(\.\d+)?$`)

// validateDecimal accepts non-negative plain decimal strings such as "12.5"
func validateDecimal(fl validator.FieldLevel) bool {
	return decimalRegex.MatchString(fl.Field().String())
}

// fieldErrors formats validation errors into a map keyed by JSON field
func fieldErrors(err error) map[string]string {
	fields := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "batch_code":
		return "must be 1-64 letters, digits, or . _ / -"
	case "movement_type":
		return "must be one of: ENTRY, SALE, EXIT, EXPIRATION"
	case "decimal":
		return "must be a non-negative decimal number"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body and validates it
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return errors.ErrValidationWithFields("validation failed", fieldErrors(validationErrors))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// sanitize removes null bytes and surrounding whitespace
func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// InputSanitizer middleware sanitizes query parameters
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = sanitize(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType middleware rejects non-JSON bodies on POST and PATCH
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPatch {
			contentType := c.GetHeader("Content-Type")
			if !strings.HasPrefix(contentType, "application/json") && c.Request.ContentLength > 0 {
				AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}
		}
		c.Next()
	}
}
