package mcp

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/felixgeelhaar/carepay/pkg/config"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_RegistersBillingTools(t *testing.T) {
	srv, err := NewServer(&cli.App{}, "test")
	require.NoError(t, err)

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)
	assert.NotEmpty(t, tools)
}

func TestServe_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	assert.Error(t, Serve(ctx, nil, &cli.App{}, logger))
	assert.Error(t, Serve(ctx, &config.Config{}, nil, logger))

	prod := &config.Config{AppEnv: "production", MCPAddr: "127.0.0.1:0"}
	assert.ErrorIs(t, Serve(ctx, prod, &cli.App{}, logger), ErrAuthTokenRequired)
}
