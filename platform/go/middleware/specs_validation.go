package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
)

// ValidateAuthenticationViaContract satisfies openapi3filter's authentication
// hook for operations that declare bearerAuth in the OpenAPI contract. The JWT
// middleware already verified the token; this only enforces header presence
// for secured operations.
func ValidateAuthenticationViaContract(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input != nil && input.SecuritySchemeName == "bearerAuth" {
		r := input.RequestValidationInput.Request
		if r == nil {
			return fmt.Errorf("no request in validation input")
		}
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fmt.Errorf("missing or invalid Authorization header")
		}
	}
	return nil
}
