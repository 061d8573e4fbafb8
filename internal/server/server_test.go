package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/studex/apiserver/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RequiresJWTSecret(t *testing.T) {
	s, err := New(context.Background(), config.Config{}, discardLogger())

	require.Error(t, err)
	require.Nil(t, s)
	require.Contains(t, err.Error(), "JWT_SECRET")
}

func TestNew_UnreachableDatabaseReturnsError(t *testing.T) {
	cfg := config.Config{
		Auth: config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour},
		Database: config.DatabaseConfig{
			Host:   "127.0.0.1",
			Port:   1,
			User:   "studex",
			DBName: "studex",
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		s   *Server
		err error
	)
	require.NotPanics(t, func() {
		s, err = New(ctx, cfg, discardLogger())
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "open database")
	require.Nil(t, s)
}

func TestCloseDependencies_EmptyServer(t *testing.T) {
	s := &Server{logger: discardLogger()}
	require.NotPanics(t, s.closeDependencies)
}
