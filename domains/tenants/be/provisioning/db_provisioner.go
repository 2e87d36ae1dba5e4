package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	sqlassets "github.com/learnstack-io/learnstack/database"
	"github.com/learnstack-io/learnstack/domains/tenants/be/service"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// databaseNamePattern keeps CREATE DATABASE safe without identifier quoting
// games. Names are machine-derived, so a strict shape is fine.
var databaseNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Config for the database provisioner.
type Config struct {
	// MaintenanceURL points at a database on the tenant cluster where
	// CREATE DATABASE can be issued, typically the postgres database.
	MaintenanceURL string
	// ConnStringTemplate is the tenant connection template with the
	// {DatabaseName} placeholder.
	ConnStringTemplate string
	// IdentitySecret keys the validation hash of the identity record.
	IdentitySecret []byte
}

// DBProvisioner creates tenant databases, applies the tenant-space schema,
// and writes the identity record.
type DBProvisioner struct {
	cfg    Config
	logger *zap.Logger

	// connect is pgx.Connect; tests swap it for a stub.
	connect func(ctx context.Context, connString string) (*pgx.Conn, error)
}

// NewDBProvisioner validates the config and builds a provisioner.
func NewDBProvisioner(cfg Config, logger *zap.Logger) (*DBProvisioner, error) {
	if cfg.MaintenanceURL == "" {
		return nil, errors.New("maintenance url is required")
	}
	if !strings.Contains(cfg.ConnStringTemplate, tenant.DatabaseNamePlaceholder) {
		return nil, fmt.Errorf("connection template must contain %s", tenant.DatabaseNamePlaceholder)
	}
	if len(cfg.IdentitySecret) == 0 {
		return nil, errors.New("identity secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBProvisioner{cfg: cfg, logger: logger, connect: pgx.Connect}, nil
}

// Ensure creates the tenant database if it does not exist, applies the
// tenant-space schema, and writes the identity record. Safe to re-run after
// a partial failure as long as the identity record was never written.
func (p *DBProvisioner) Ensure(ctx context.Context, req service.DBProvisionRequest) error {
	if !databaseNamePattern.MatchString(req.DatabaseName) {
		return fmt.Errorf("invalid database name %q", req.DatabaseName)
	}

	if err := p.createDatabase(ctx, req.DatabaseName); err != nil {
		return err
	}

	connString := strings.ReplaceAll(p.cfg.ConnStringTemplate, tenant.DatabaseNamePlaceholder, req.DatabaseName)
	conn, err := p.connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("connect to tenant database %s: %w", req.DatabaseName, err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	for _, ddl := range []string{
		sqlassets.TenantIdentitySQL,
		sqlassets.UsersSQL,
		sqlassets.LearningObjectsSQL,
	} {
		if _, err := conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply tenant schema to %s: %w", req.DatabaseName, err)
		}
	}

	meta, err := json.Marshal(map[string]string{
		"slug":           req.Slug,
		"provisioned_by": req.ProvisionedBy,
	})
	if err != nil {
		return err
	}

	rec := persistence.NewIdentityRecord(p.cfg.IdentitySecret, req.TenantID, req.DatabaseName, time.Now(), string(meta))
	if err := persistence.WriteIdentityRecord(ctx, conn, rec); err != nil {
		return fmt.Errorf("write identity record for %s: %w", req.DatabaseName, err)
	}

	p.logger.Info("tenant database provisioned",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("database_name", req.DatabaseName),
	)
	return nil
}

func (p *DBProvisioner) createDatabase(ctx context.Context, name string) error {
	conn, err := p.connect(ctx, p.cfg.MaintenanceURL)
	if err != nil {
		return fmt.Errorf("connect to maintenance database: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var exists bool
	if err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	// CREATE DATABASE does not take bind parameters; the name was validated
	// against a strict pattern above.
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

var _ service.DBProvisioner = (*DBProvisioner)(nil)
