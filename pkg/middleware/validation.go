package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/panelworks/production-engine/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// InitValidator initializes the validator with custom validators
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerCustom(validate)

		// Gin binds with its own validator engine; register there too
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustom(v)
		}
	})

	return validate
}

var (
	tabletIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
	workerIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
)

func registerCustom(v *validator.Validate) {
	_ = v.RegisterValidation("tablet_id", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || tabletIDRegex.MatchString(s)
	})
	_ = v.RegisterValidation("worker_id", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || workerIDRegex.MatchString(s)
	})

	// Use JSON tag names for error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// BindAndValidate binds the JSON body into obj and maps validation failures
// to a VALIDATION_ERROR with per-field details
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return errors.ErrValidation("request validation failed").WithDetails(fields)
		}
		return errors.ErrBadRequest("malformed request body").Wrap(err)
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		*target = verrs
		return true
	}
	return false
}
