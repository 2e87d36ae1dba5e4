package sqlassets

import _ "embed"

//go:embed schema/directory/tenants.sql
var TenantsSQL string

//go:embed schema/tenant_space/tenant_identity.sql
var TenantIdentitySQL string

//go:embed schema/tenant_space/users.sql
var UsersSQL string

//go:embed schema/tenant_space/learning_objects.sql
var LearningObjectsSQL string
