package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// CreatePasteRequest is the payload for POST /api/pastes. Omitted or null
// limits mean unlimited.
type CreatePasteRequest struct {
	Content    string `json:"content" validate:"required"`
	TTLSeconds *int64 `json:"ttl_seconds" validate:"omitempty,min=1,max=3153600000"`
	MaxViews   *int64 `json:"max_views" validate:"omitempty,min=1"`
}

// New returns a validator that reports fields by their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// message renders one field error the way API clients see it
func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be an integer >= " + fe.Param()
	case "max":
		return fe.Field() + " must be an integer <= " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
