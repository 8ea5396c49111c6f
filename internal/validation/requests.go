package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// LikeRequest is the body of a like toggle.
type LikeRequest struct {
	CurrentlyLiked *bool `json:"currently_liked" validate:"required"`
}

// CommentRequest is the body of a new comment.
type CommentRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// UnmountRequest carries the scroll offset when the feed screen detaches.
type UnmountRequest struct {
	Offset float64 `json:"offset" validate:"gte=0"`
}

// FieldErrors maps JSON field names to the rule each one failed.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, rule := range e {
		parts = append(parts, field+": "+rule)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// Struct validates v's `validate` tags and reports failures keyed by JSON field name.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	structType := reflect.TypeOf(v)
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		name := fe.StructField()
		if field, ok := structType.FieldByName(fe.StructField()); ok {
			if tag := strings.Split(field.Tag.Get("json"), ",")[0]; tag != "" {
				name = tag
			}
		}
		out[name] = fe.Tag()
	}
	return out
}
