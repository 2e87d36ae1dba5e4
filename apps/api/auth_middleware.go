package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/learnstack-io/learnstack/platform/go/auth"
	"github.com/learnstack-io/learnstack/platform/go/gcp"
)

// buildAuthMiddleware constructs the JWT middleware for the configured
// provider. Tenant claim extraction happens inside the default extractor;
// enforcement is left to the tenant resolution middleware so exempt admin
// routes keep working for principals without a tenant claim.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) func(http.Handler) http.Handler {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
	}

	return platformauth.JWT(verify, platformauth.DefaultCredentialExtractor)
}
