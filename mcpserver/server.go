package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/craftpad/runbox/config"
	"github.com/craftpad/runbox/pkgmanager"
	"github.com/craftpad/runbox/runtime"
)

// ExecutionService is the slice of the execution runtime exposed as tools
type ExecutionService interface {
	ExecuteCode(ctx context.Context, req runtime.ExecutionRequest) runtime.ExecutionResult
	SupportedLanguages() []string
}

// PackageService is the slice of the package manager exposed as tools
type PackageService interface {
	Install(ctx context.Context, req pkgmanager.InstallRequest) pkgmanager.InstallResult
	InstalledPackages(ctx context.Context, projectID, lang string) ([]string, error)
}

// MCPServer exposes the execution runtime over the Model Context
// Protocol so agents can run code and manage dependencies directly
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	exec      ExecutionService
	pkgs      PackageService
	mcpServer *server.MCPServer
}

// New creates the MCP server and registers its tools
func New(cfg *config.Config, logger *zap.Logger, exec ExecutionService, pkgs PackageService) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		exec:   exec,
		pkgs:   pkgs,
	}

	s.mcpServer = server.NewMCPServer("runbox", "Sandboxed code execution and dependency management")

	s.registerExecuteCodeTool()
	s.registerInstallPackagesTool()
	s.registerListPackagesTool()

	return s, nil
}

func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Execute code in an isolated, network-less container and return its output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Workspace the execution runs in",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language",
					"enum":        s.exec.SupportedLanguages(),
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code for the language's main file",
				},
				"command": map[string]any{
					"type":        "string",
					"description": "Shell command overriding the default run command (optional)",
				},
			},
			Required: []string{"project_id", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return nil, fmt.Errorf("project_id parameter is required: %w", err)
	}
	lang, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	req := runtime.ExecutionRequest{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Language:  lang,
		Code:      request.GetString("code", ""),
		Command:   request.GetString("command", ""),
	}

	s.logger.Info("mcp code execution requested",
		zap.String("project", projectID),
		zap.String("language", lang))

	res := s.exec.ExecuteCode(ctx, req)
	return toolResultJSON(res, res.Error != "")
}

func (s *MCPServer) registerInstallPackagesTool() {
	tool := mcp.Tool{
		Name:        "install_packages",
		Description: "Install language dependencies into a project's workspace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Workspace to install into",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Language whose package manager handles the install",
				},
				"packages": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Package specifiers, optionally versioned",
				},
			},
			Required: []string{"project_id", "language", "packages"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleInstallPackages)
}

func (s *MCPServer) handleInstallPackages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return nil, fmt.Errorf("project_id parameter is required: %w", err)
	}
	lang, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}
	pkgs, err := request.RequireStringSlice("packages")
	if err != nil {
		return nil, fmt.Errorf("packages parameter is required: %w", err)
	}

	res := s.pkgs.Install(ctx, pkgmanager.InstallRequest{
		ProjectID: projectID,
		Language:  lang,
		Packages:  pkgs,
	})
	return toolResultJSON(res, !res.Success)
}

func (s *MCPServer) registerListPackagesTool() {
	tool := mcp.Tool{
		Name:        "list_packages",
		Description: "List the dependencies installed in a project's workspace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Workspace to inspect",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Language whose package manager lists dependencies",
				},
			},
			Required: []string{"project_id", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListPackages)
}

func (s *MCPServer) handleListPackages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return nil, fmt.Errorf("project_id parameter is required: %w", err)
	}
	lang, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	pkgs, err := s.pkgs.InstalledPackages(ctx, projectID, lang)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}
	return toolResultJSON(map[string][]string{"packages": pkgs}, false)
}

func toolResultJSON(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(data)}},
		IsError: isError,
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.MCPHTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
