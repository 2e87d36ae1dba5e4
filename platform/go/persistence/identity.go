package persistence

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantIdentityTable is the single-row table inside each tenant database.
const TenantIdentityTable = "tenant_identity"

// IdentityRecord is the tamper-evident marker written once when a tenant
// database is provisioned. The request path re-validates it and never
// updates it.
type IdentityRecord struct {
	TenantID         uuid.UUID `db:"tenant_id"`
	DatabaseName     string    `db:"database_name"`
	CreatedAt        time.Time `db:"created_at"`
	ValidationHash   string    `db:"validation_hash"`
	CreationMetadata string    `db:"creation_metadata"`
}

// ComputeValidationHash returns the hex HMAC-SHA256 digest over the identity
// tuple keyed with the server-side secret. The timestamp is truncated to
// microseconds so the digest survives the round trip through timestamptz.
func ComputeValidationHash(secret []byte, tenantID uuid.UUID, databaseName string, createdAt time.Time) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tenantID.String()))
	mac.Write([]byte("|"))
	mac.Write([]byte(databaseName))
	mac.Write([]byte("|"))
	mac.Write([]byte(createdAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewIdentityRecord builds a fully-hashed record for provisioning.
func NewIdentityRecord(secret []byte, tenantID uuid.UUID, databaseName string, createdAt time.Time, creationMetadata string) IdentityRecord {
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	return IdentityRecord{
		TenantID:         tenantID,
		DatabaseName:     databaseName,
		CreatedAt:        createdAt,
		ValidationHash:   ComputeValidationHash(secret, tenantID, databaseName, createdAt),
		CreationMetadata: creationMetadata,
	}
}

// WriteIdentityRecord inserts the identity row. Provisioning only; refuses to
// write when a record already exists so the marker stays immutable.
func WriteIdentityRecord(ctx context.Context, conn *pgx.Conn, rec IdentityRecord) error {
	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+TenantIdentityTable).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return errors.New("tenant identity record already present")
	}

	_, err := conn.Exec(ctx, `
        INSERT INTO `+TenantIdentityTable+` (tenant_id, database_name, created_at, validation_hash, creation_metadata)
        VALUES ($1, $2, $3, $4, $5)`,
		rec.TenantID, rec.DatabaseName, rec.CreatedAt, rec.ValidationHash, rec.CreationMetadata,
	)
	return err
}

// readIdentityRecords returns every row of the identity table. The validator
// treats anything other than exactly one row as a failure.
func readIdentityRecords(ctx context.Context, conn *pgx.Conn) ([]IdentityRecord, error) {
	rows, err := conn.Query(ctx, `
        SELECT tenant_id, database_name, created_at, validation_hash, creation_metadata
        FROM `+TenantIdentityTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []IdentityRecord
	for rows.Next() {
		var rec IdentityRecord
		if err := rows.Scan(&rec.TenantID, &rec.DatabaseName, &rec.CreatedAt, &rec.ValidationHash, &rec.CreationMetadata); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
