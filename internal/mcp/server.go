// Package mcp runs the MCP server over the billing tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	carepaymcp "github.com/felixgeelhaar/carepay/adapter/mcp"
	"github.com/felixgeelhaar/carepay/pkg/config"
	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"
)

// ErrAuthTokenRequired is returned when a production server has no token.
var ErrAuthTokenRequired = errors.New("MCP_AUTH_TOKEN is required in production")

// NewServer builds the MCP server with every billing tool registered.
func NewServer(app *cli.App, version string) (*mcpgo.Server, error) {
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    "carepay-mcp",
		Version: version,
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	})
	if err := carepaymcp.RegisterTools(srv, carepaymcp.ToolDependencies{App: app}); err != nil {
		return nil, err
	}
	return srv, nil
}

// Serve listens on cfg.MCPAddr until ctx is canceled.
func Serve(ctx context.Context, cfg *config.Config, app *cli.App, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if app == nil {
		return errors.New("CLI app is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := NewServer(app, cli.Version)
	if err != nil {
		return err
	}

	adapter := mcpLogger{logger: logger.With("component", "mcp")}
	stack := middleware.DefaultStack(adapter)

	switch {
	case cfg.MCPAuthToken != "":
		authenticator := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
			cfg.MCPAuthToken: {ID: "operator", Name: "operator"},
		}))
		stack = append([]middleware.Middleware{middleware.Auth(authenticator, middleware.WithAuthLogger(adapter))}, stack...)
	case cfg.IsProduction():
		return ErrAuthTokenRequired
	default:
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr)
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(stack...))
}

// mcpLogger adapts slog to the middleware logger.
type mcpLogger struct {
	logger *slog.Logger
}

func (l mcpLogger) Info(msg string, fields ...middleware.Field) {
	l.logger.Info(msg, fieldArgs(fields)...)
}

func (l mcpLogger) Error(msg string, fields ...middleware.Field) {
	l.logger.Error(msg, fieldArgs(fields)...)
}

func (l mcpLogger) Debug(msg string, fields ...middleware.Field) {
	l.logger.Debug(msg, fieldArgs(fields)...)
}

func (l mcpLogger) Warn(msg string, fields ...middleware.Field) {
	l.logger.Warn(msg, fieldArgs(fields)...)
}

func fieldArgs(fields []middleware.Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}
