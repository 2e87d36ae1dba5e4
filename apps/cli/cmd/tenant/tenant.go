package tenantcmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/learnstack-io/learnstack/domains/tenants/be/provisioning"
	"github.com/learnstack-io/learnstack/domains/tenants/be/repo"
	"github.com/learnstack-io/learnstack/domains/tenants/be/service"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create/provision/list)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(provisionCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

type dirFlags struct {
	databaseURL string
	envKey      string
}

func (f *dirFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.databaseURL, "database-url", "", "directory database URL")
	cmd.Flags().StringVar(&f.envKey, "env-key", "", "environment key used to derive tenant database names")
	_ = cmd.MarkFlagRequired("database-url")
	_ = cmd.MarkFlagRequired("env-key")
}

func (f *dirFlags) service(ctx context.Context, provisioner service.DBProvisioner) (*service.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	store, err := persistence.NewDirectoryStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init directory store: %w", err)
	}

	svc := service.New(repo.NewPostgres(store), f.envKey, provisioner)
	return svc, func() { persistence.ClosePool(pool) }, nil
}

func createCommand() *cobra.Command {
	var flags dirFlags
	var slug, displayName string

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant in the directory (no database yet)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := flags.service(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			input := service.CreateInput{Slug: slug}
			if displayName != "" {
				input.DisplayName = &displayName
			}

			t, err := svc.Create(ctx, input)
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created tenant %s (slug %s)\n", t.ID, t.Slug)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&slug, "slug", "", "tenant slug")
	c.Flags().StringVar(&displayName, "name", "", "display name")
	_ = c.MarkFlagRequired("slug")
	return c
}

func provisionCommand() *cobra.Command {
	var flags dirFlags
	var tenantID, maintenanceURL, template, secret string

	c := &cobra.Command{
		Use:   "provision",
		Short: "Create the tenant database, write its identity record, and bind the name",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("tenant id must be a UUID: %w", err)
			}

			if maintenanceURL == "" {
				maintenanceURL = flags.databaseURL
			}
			provisioner, err := provisioning.NewDBProvisioner(provisioning.Config{
				MaintenanceURL:     maintenanceURL,
				ConnStringTemplate: template,
				IdentitySecret:     []byte(secret),
			}, zap.NewNop())
			if err != nil {
				return fmt.Errorf("init provisioner: %w", err)
			}

			svc, cleanup, err := flags.service(ctx, provisioner)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := svc.Provision(ctx, id)
			if err != nil {
				return fmt.Errorf("provision tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "provisioned tenant %s into database %s\n", t.ID, t.DatabaseName)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&tenantID, "tenant-id", "", "tenant id")
	c.Flags().StringVar(&maintenanceURL, "maintenance-url", "", "maintenance database URL; defaults to --database-url")
	c.Flags().StringVar(&template, "template", "", "tenant connection template containing {DatabaseName}")
	c.Flags().StringVar(&secret, "identity-secret", "", "server secret keying the identity hash")
	_ = c.MarkFlagRequired("tenant-id")
	_ = c.MarkFlagRequired("template")
	_ = c.MarkFlagRequired("identity-secret")
	return c
}

func listCommand() *cobra.Command {
	var flags dirFlags
	var page, pageSize int

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants in the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := flags.service(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.List(ctx, service.ListOptions{Page: page, PageSize: pageSize})
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT ID\tSLUG\tDATABASE\tACTIVE")
			for _, t := range result.Tenants {
				db := t.DatabaseName
				if db == "" {
					db = "(not provisioned)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", t.ID, t.Slug, db, t.IsActive)
			}
			return w.Flush()
		},
	}

	flags.register(c)
	c.Flags().IntVar(&page, "page", 1, "page number")
	c.Flags().IntVar(&pageSize, "page-size", 50, "page size")
	return c
}
