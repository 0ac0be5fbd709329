package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"messenger/pkg/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

type profileRequest struct {
	Name              *string `json:"name" validate:"omitnil,min=1"`
	Status            *string `json:"status"`
	Avatar            *string `json:"avatar"`
	Username          *string `json:"username" validate:"omitnil,min=1"`
	AllowGroupInvites *bool   `json:"allowGroupInvites"`
}

type profileResponse struct {
	User  domain.Identity `json:"user"`
	Token string          `json:"token,omitempty"`
}

type directChatRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type groupRequest struct {
	Name      string   `json:"name" validate:"required"`
	MemberIDs []string `json:"memberIds" validate:"required,dive,required"`
	Avatar    string   `json:"avatar"`
}

type messageRequest struct {
	Text       string `json:"text"`
	Attachment string `json:"attachment"`
}

type uploadResponse struct {
	FileURL     string `json:"fileUrl"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// decodeJSON reads a bounded JSON body into dst and validates it. On failure
// the 400 response is already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
