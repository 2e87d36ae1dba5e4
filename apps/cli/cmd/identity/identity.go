package identitycmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/learnstack-io/learnstack/platform/go/persistence"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// Command groups identity-record helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Tenant identity record utilities",
	}

	cmd.AddCommand(verifyCommand())
	return cmd
}

func verifyCommand() *cobra.Command {
	var databaseURL, tenantID, template, secret string

	c := &cobra.Command{
		Use:   "verify",
		Short: "Connect to a tenant database and verify its identity record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("tenant id must be a UUID: %w", err)
			}

			dirPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(dirPool)

			store, err := persistence.NewDirectoryStore(dirPool)
			if err != nil {
				return fmt.Errorf("init directory store: %w", err)
			}

			resolver, err := tenant.NewResolver(store, template)
			if err != nil {
				return fmt.Errorf("init resolver: %w", err)
			}

			target, err := resolver.Resolve(ctx, id)
			if err != nil {
				return fmt.Errorf("resolve tenant: %w", err)
			}

			validator, err := persistence.NewIdentityValidator([]byte(secret), persistence.NewConnector(persistence.ConnectorConfig{MaxAttempts: 1}))
			if err != nil {
				return fmt.Errorf("init validator: %w", err)
			}

			conn, err := validator.Validate(ctx, id, target)
			if err != nil {
				return fmt.Errorf("identity check failed: %w", err)
			}
			defer conn.Close(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "identity record for tenant %s in database %s is valid\n", id, target.DatabaseName)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "directory database URL")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "tenant id")
	c.Flags().StringVar(&template, "template", "", "tenant connection template containing {DatabaseName}")
	c.Flags().StringVar(&secret, "identity-secret", "", "server secret keying the identity hash")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("tenant-id")
	_ = c.MarkFlagRequired("template")
	_ = c.MarkFlagRequired("identity-secret")
	return c
}
