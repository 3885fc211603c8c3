package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"magiclink-auth/pkg/apierror"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeAndValidate decodes the JSON body into payload and checks its
// validate tags, writing the error response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, payload any, production bool) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""), production)
		return false
	}

	if err := validate.Struct(payload); err != nil {
		field := ""
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			field = strings.ToLower(validationErrors[0].Field())
		}
		writeError(w, apierror.Validation("invalid request", field), production)
		return false
	}

	return true
}
