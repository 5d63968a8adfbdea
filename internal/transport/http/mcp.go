package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vovakirdan/partyhub-server/internal/core"
)

const maxMCPBody = 1 << 20

// NewMCPServer exposes read-only operator tools over MCP.
func NewMCPServer(inspector Inspector, catalog Catalog, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"partyhub",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`PartyHub operator interface.

AVAILABLE TOOLS:
- list_games: game modules installed on this server
- list_rooms: open rooms with their phase and players
- get_room: one room by numeric id`),
	)
	t := &mcpTools{inspector: inspector, catalog: catalog}

	s.AddTool(mcp.Tool{
		Name:        "list_games",
		Description: "List installed game modules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, t.listGames)

	s.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List open rooms",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, t.listRooms)

	s.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get one room by id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"room_id": map[string]any{
					"type":        "number",
					"description": "Room id shared by the host",
				},
			},
			Required: []string{"room_id"},
		},
	}, t.getRoom)

	return s
}

type mcpTools struct {
	inspector Inspector
	catalog   Catalog
}

func (t *mcpTools) listGames(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.catalog.List())
}

func (t *mcpTools) listRooms(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rooms, err := t.inspector.Rooms(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rooms == nil {
		rooms = []core.RoomSnapshot{}
	}
	return jsonResult(rooms)
}

func (t *mcpTools) getRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	raw, ok := args["room_id"].(float64)
	if !ok {
		return mcp.NewToolResultError("room_id must be a number"), nil
	}
	room, found, err := t.inspector.Room(ctx, int(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("room %d not found", int(raw))), nil
	}
	return jsonResult(room)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// mcpHandler serves single JSON-RPC messages posted to /mcp.
func mcpHandler(s *server.MCPServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMCPBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: core.ErrCodeBadRequest, Error: "failed to read request"})
			return
		}
		response := s.HandleMessage(c.Request.Context(), body)
		if response == nil {
			c.Status(http.StatusAccepted)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}
