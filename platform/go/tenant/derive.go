package tenant

import (
	"strings"
)

// ToSnake converts a kebab-case slug into snake_case for database names.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// BuildDatabaseName returns the canonical physical database name for a tenant:
// `<envKey>_tenant_<slugSnake>`. The env prefix keeps databases from different
// environments apart on shared clusters.
func BuildDatabaseName(envKey, slug string) string {
	envKey = strings.TrimSpace(envKey)
	return envKey + "_tenant_" + ToSnake(slug)
}
