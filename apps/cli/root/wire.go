package root

import (
	"github.com/learnstack-io/learnstack/apps/cli/cmd/auth"
	identitycmd "github.com/learnstack-io/learnstack/apps/cli/cmd/identity"
	tenantcmd "github.com/learnstack-io/learnstack/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(identitycmd.Command())
}
