package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

func TestConnectorRetriesUpToCap(t *testing.T) {
	attempts := 0
	c := NewConnector(ConnectorConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond})
	c.connect = func(ctx context.Context, connString string) (*pgx.Conn, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	_, err := c.Dial(context.Background(), tenant.Target{ConnString: "postgres://db/x"})
	require.ErrorIs(t, err, ErrTenantUnreachable)
	require.Equal(t, 3, attempts)
}

func TestConnectorStopsOnSuccess(t *testing.T) {
	attempts := 0
	c := NewConnector(ConnectorConfig{MaxAttempts: 5, RetryBackoff: time.Millisecond})
	c.connect = func(ctx context.Context, connString string) (*pgx.Conn, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	}

	session, err := c.Dial(context.Background(), tenant.Target{ConnString: "postgres://db/x"})
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, 2, attempts)
}

func TestConnectorClampsAttempts(t *testing.T) {
	attempts := 0
	c := NewConnector(ConnectorConfig{MaxAttempts: 0})
	c.connect = func(ctx context.Context, connString string) (*pgx.Conn, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	_, err := c.Dial(context.Background(), tenant.Target{})
	require.ErrorIs(t, err, ErrTenantUnreachable)
	require.Equal(t, 1, attempts)
}

func TestConnectorHonorsCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	c := NewConnector(ConnectorConfig{MaxAttempts: 10, RetryBackoff: time.Minute})
	c.connect = func(ctx context.Context, connString string) (*pgx.Conn, error) {
		attempts++
		cancel()
		return nil, errors.New("connection refused")
	}

	start := time.Now()
	_, err := c.Dial(ctx, tenant.Target{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
	require.Less(t, time.Since(start), time.Second)
}
