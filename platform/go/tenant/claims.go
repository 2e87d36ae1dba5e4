package tenant

import (
	"github.com/google/uuid"
)

// tenantClaimKeys lists the claim names observed across identity providers, in
// lookup order. The first claim holding a parseable tenant UUID wins.
var tenantClaimKeys = []string{
	"tenant_id",
	"https://learnstack.io/tenant_id",
	"https://claims.learnstack.io/tenant_id",
	"tid",
}

// NormalizeClaims reduces a raw claims map to the canonical tenant identifier.
// It checks the flat claim names first and falls back to the nested
// firebase.tenant namespace. Returns false when no claim holds a valid UUID.
func NormalizeClaims(claims map[string]interface{}) (uuid.UUID, bool) {
	if claims == nil {
		return uuid.Nil, false
	}

	for _, key := range tenantClaimKeys {
		if id, ok := parseTenantClaim(claims[key]); ok {
			return id, true
		}
	}

	if firebaseClaim, ok := claims["firebase"].(map[string]interface{}); ok {
		if id, ok := parseTenantClaim(firebaseClaim["tenant"]); ok {
			return id, true
		}
	}

	return uuid.Nil, false
}

func parseTenantClaim(v interface{}) (uuid.UUID, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
