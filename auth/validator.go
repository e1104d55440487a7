package auth

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func validateClaims(claims *CustomClaims) error {
	return validate.Struct(claims)
}

// BearerToken reads the token from the Authorization header. Browsers cannot
// set headers on a websocket handshake, so the "token" query parameter is
// accepted as well.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
