package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// ErrTenantUnreachable is returned when the tenant database cannot be reached
// within the configured retry budget. This is the one retryable failure in
// tenant resolution; callers may retry the whole request, never the step.
var ErrTenantUnreachable = errors.New("tenant database unreachable")

// Session is an open connection to a tenant database, scoped to one request.
// Conn returns nil for fake sessions used in tests.
type Session interface {
	Identity(ctx context.Context) ([]IdentityRecord, error)
	Conn() *pgx.Conn
	Close(ctx context.Context) error
}

// Dialer opens tenant database sessions.
type Dialer interface {
	Dial(ctx context.Context, target tenant.Target) (Session, error)
}

// ConnectorConfig bounds the connection retry loop. Both values come from
// configuration so tests and deployments can tune them.
type ConnectorConfig struct {
	// MaxAttempts caps connection attempts per resolution; minimum 1.
	MaxAttempts int
	// RetryBackoff is the fixed delay between attempts.
	RetryBackoff time.Duration
}

// Connector dials tenant databases with a bounded retry loop. It holds no
// connections itself; every Dial opens a fresh short-lived connection that the
// caller must close before the request ends.
type Connector struct {
	maxAttempts int
	backoff     time.Duration
	connect     func(ctx context.Context, connString string) (*pgx.Conn, error)
}

// NewConnector builds a Connector from config, clamping the attempt cap to at
// least one.
func NewConnector(cfg ConnectorConfig) *Connector {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Connector{
		maxAttempts: attempts,
		backoff:     cfg.RetryBackoff,
		connect:     pgx.Connect,
	}
}

// Dial opens a session to the target database, retrying transient connection
// failures up to the configured cap. Context cancellation aborts the loop
// immediately, including mid-backoff.
func (c *Connector) Dial(ctx context.Context, target tenant.Target) (Session, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 && c.backoff > 0 {
			timer := time.NewTimer(c.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		conn, err := c.connect(ctx, target.ConnString)
		if err == nil {
			return &pgxSession{conn: conn}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrTenantUnreachable, c.maxAttempts, lastErr)
}

type pgxSession struct {
	conn *pgx.Conn
}

func (s *pgxSession) Identity(ctx context.Context) ([]IdentityRecord, error) {
	return readIdentityRecords(ctx, s.conn)
}

func (s *pgxSession) Conn() *pgx.Conn { return s.conn }

func (s *pgxSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// TenantConn is the validated tenant-scoped handle handed to downstream
// repositories. Valid only for the lifetime of the current request.
type TenantConn struct {
	session Session
	target  tenant.Target
}

// NewTenantConn wraps a validated session. Exported for the validator and for
// test fakes.
func NewTenantConn(session Session, target tenant.Target) *TenantConn {
	return &TenantConn{session: session, target: target}
}

// Conn exposes the underlying pgx connection for repositories.
func (c *TenantConn) Conn() *pgx.Conn { return c.session.Conn() }

// Target reports the resolved routing metadata this handle was validated for.
func (c *TenantConn) Target() tenant.Target { return c.target }

// Close releases the underlying connection.
func (c *TenantConn) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}

type connCtxKey struct{}

// WithTenantConn attaches the validated handle to the request context.
func WithTenantConn(ctx context.Context, conn *TenantConn) context.Context {
	return context.WithValue(ctx, connCtxKey{}, conn)
}

// TenantConnFromContext retrieves the request's validated tenant handle.
func TenantConnFromContext(ctx context.Context) (*TenantConn, bool) {
	conn, ok := ctx.Value(connCtxKey{}).(*TenantConn)
	return conn, ok
}
