package tenant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClaims(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		claims map[string]interface{}
		want   uuid.UUID
		ok     bool
	}{
		{
			"canonical tenant_id",
			map[string]interface{}{"tenant_id": id.String()},
			id, true,
		},
		{
			"namespaced claim",
			map[string]interface{}{"https://learnstack.io/tenant_id": id.String()},
			id, true,
		},
		{
			"alternate namespaced claim",
			map[string]interface{}{"https://claims.learnstack.io/tenant_id": id.String()},
			id, true,
		},
		{
			"short tid claim",
			map[string]interface{}{"tid": id.String()},
			id, true,
		},
		{
			"nested firebase tenant",
			map[string]interface{}{"firebase": map[string]interface{}{"tenant": id.String()}},
			id, true,
		},
		{
			"flat claim wins over nested",
			map[string]interface{}{
				"tenant_id": id.String(),
				"firebase":  map[string]interface{}{"tenant": uuid.New().String()},
			},
			id, true,
		},
		{
			"no tenant claim",
			map[string]interface{}{"sub": "user-1"},
			uuid.Nil, false,
		},
		{
			"empty string",
			map[string]interface{}{"tenant_id": ""},
			uuid.Nil, false,
		},
		{
			"not a uuid",
			map[string]interface{}{"tenant_id": "acme"},
			uuid.Nil, false,
		},
		{
			"nil uuid rejected",
			map[string]interface{}{"tenant_id": uuid.Nil.String()},
			uuid.Nil, false,
		},
		{
			"non-string claim",
			map[string]interface{}{"tenant_id": 42},
			uuid.Nil, false,
		},
		{
			"nil claims",
			nil,
			uuid.Nil, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeClaims(tt.claims)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDatabaseName(t *testing.T) {
	require.Equal(t, "prod_tenant_acme", BuildDatabaseName("prod", "acme"))
	require.Equal(t, "dev_tenant_acme_co", BuildDatabaseName("dev", "acme-co"))
}
