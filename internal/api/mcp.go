package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/groupclip/groupclip/internal/share"
	"github.com/groupclip/groupclip/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Sharer RecordSharer
	Conn   ConnectionTester
}

// NewMCPServer creates an MCP server exposing group-share tools so that
// local agents can push content to the group and inspect recent activity.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"groupclip",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("groupclip shares clipboard content and detected contract addresses with a collaboration group."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("share_clipboard",
			mcp.WithDescription("Share a piece of text with the configured collaboration group."),
			mcp.WithString("content", mcp.Description("The text to share"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Optional title for the shared content")),
			mcp.WithString("url", mcp.Description("Optional source URL")),
		),
		mcpShareClipboard(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_activity",
			mcp.WithDescription("List recently detected contract addresses shared within the group."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpRecentActivity(deps),
	)

	s.AddTool(
		mcp.NewTool("test_connection",
			mcp.WithDescription("Run a staged connectivity check against the remote share store."),
		),
		mcpTestConnection(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"groupclip://settings",
			"Group Settings",
			mcp.WithResourceDescription("Current username, group, and clipboard watch state"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSettings(deps),
	)

	return s
}

func mcpShareClipboard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		groupID := deps.Store.GetSettingDefault(storage.KeyGroupID, "")
		if groupID == "" {
			return mcpError("no group configured"), nil
		}

		rec := share.Record{
			Content:   content,
			GroupID:   groupID,
			Sender:    deps.Store.GetSettingDefault(storage.KeyUsername, ""),
			Title:     req.GetString("title", ""),
			URL:       req.GetString("url", ""),
			Timestamp: time.Now().UnixMilli(),
		}
		if err := deps.Sharer.ShareRecord(ctx, rec); err != nil {
			return mcpError(fmt.Sprintf("share failed: %v", err)), nil
		}

		return mcpText("Shared with group " + groupID), nil
	}
}

func mcpRecentActivity(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", storage.MaxActivities)
		if limit <= 0 {
			limit = storage.MaxActivities
		}

		acts, err := deps.Store.RecentActivities(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing activity failed: %v", err)), nil
		}
		if len(acts) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(acts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal activity: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpTestConnection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := deps.Conn.TestConnection(ctx)
		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if !result.Success {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		settings := map[string]any{
			"username":         deps.Store.GetSettingDefault(storage.KeyUsername, ""),
			"groupId":          deps.Store.GetSettingDefault(storage.KeyGroupID, ""),
			"clipboardEnabled": deps.Store.GetSettingDefault(storage.KeyClipboardEnabled, "true"),
		}
		b, err := json.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
