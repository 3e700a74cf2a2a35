package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := PoolConfig(Options{DSN: "postgres://u:p@localhost:5432/urcash?sslmode=disable", MaxConns: 7})
	require.NoError(t, err)
	require.EqualValues(t, 7, cfg.MaxConns)
	require.Equal(t, 5*time.Minute, cfg.MaxConnIdleTime)
	require.Equal(t, "urcash", cfg.ConnConfig.Database)

	_, err = PoolConfig(Options{DSN: "://nope"})
	require.Error(t, err)
}
