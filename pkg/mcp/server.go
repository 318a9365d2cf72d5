package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/linkgate/pkg/client"
)

// Server adapts linkgate-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"linkgate",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// linkgate://links
	s.mcpServer.AddResource(mcp.NewResource(
		"linkgate://links",
		"Stored Links",
		mcp.WithResourceDescription("Every doublet in the store as {id, from_id, to_id}"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadLinks)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"insert_links",
		mcp.WithDescription("Insert links, reusing the id of any pair that already exists. Returns one id per pair, in order."),
		mcp.WithString("pairs", mcp.Required(), mcp.Description("Comma separated from:to pairs, e.g. '1:2,2:3'")),
	), s.handleInsertLinks)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"linkgate-aware",
		mcp.WithPromptDescription("Explains the doublet model served by linkgate"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadLinks(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	links, err := s.apiClient.Links(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch links: %w", err)
	}

	data, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal links: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleInsertLinks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objects, err := client.ParsePairs(mcp.ParseString(request, "pairs", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	links, err := s.apiClient.InsertLinks(ctx, objects)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	for _, l := range links {
		fmt.Fprintf(&b, "%d: %d -> %d\n", l.ID, l.FromID, l.ToID)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "linkgate-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with linkgate, a store of links (doublets).

Concepts:
- Link: a triple (id, from_id, to_id). The store assigns the id.
- A pair (from_id, to_id) is stored at most once. Inserting it again returns the same id.
- Links may point at any identifier, including their own id or ids that do not exist yet.

Read the 'linkgate://links' resource to see the store. Use the 'insert_links' tool to add links.
`

	return mcp.NewGetPromptResult(
		"linkgate-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
