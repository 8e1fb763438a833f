// Package mcp exposes the secret-lifecycle boundary as MCP tools over stdio,
// so downstream agents and tools can store, retrieve and obtain credentials.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/sealbox/sealbox/internal/jobs"
	"github.com/sealbox/sealbox/internal/oauth"
	"github.com/sealbox/sealbox/internal/vault"
)

// SealboxServerDeps holds the dependencies for creating a SealboxServer.
type SealboxServerDeps struct {
	Vault       *vault.Vault
	Coordinator *oauth.Coordinator
	Scheduler   *jobs.Scheduler
	Logger      *slog.Logger
}

// SealboxServer wraps an MCP server with sealbox tool handlers.
type SealboxServer struct {
	vault     *vault.Vault
	coord     *oauth.Coordinator
	scheduler *jobs.Scheduler
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewSealboxServer creates a new SealboxServer with all tools registered.
func NewSealboxServer(deps SealboxServerDeps) *SealboxServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &SealboxServer{
		vault:     deps.Vault,
		coord:     deps.Coordinator,
		scheduler: deps.Scheduler,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"sealbox",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Sealbox stores secrets (API keys, OAuth tokens) encrypted at rest. Use sealbox.save_secret/get_secret/list_secrets/delete_secret for the vault, sealbox.start_oauth/poll_oauth to capture an OAuth authorization code, sealbox.submit_job/poll_job for automation jobs that retrieve credentials, and sealbox.export_vault/import_vault to move the credential set between machines."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *SealboxServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *SealboxServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *SealboxServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: saveSecretTool(), Handler: s.handleSaveSecret},
		{Tool: getSecretTool(), Handler: s.handleGetSecret},
		{Tool: listSecretsTool(), Handler: s.handleListSecrets},
		{Tool: deleteSecretTool(), Handler: s.handleDeleteSecret},
		{Tool: exportVaultTool(), Handler: s.handleExportVault},
		{Tool: importVaultTool(), Handler: s.handleImportVault},
		{Tool: startOAuthTool(), Handler: s.handleStartOAuth},
		{Tool: pollOAuthTool(), Handler: s.handlePollOAuth},
		{Tool: submitJobTool(), Handler: s.handleSubmitJob},
		{Tool: pollJobTool(), Handler: s.handlePollJob},
	}
}
