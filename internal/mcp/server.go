// Package mcp implements the Model Context Protocol server for scene editing.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// Executor runs fn on the goroutine that owns the hierarchy.
type Executor interface {
	Call(ctx context.Context, fn func(h *scene.Hierarchy) error) error
}

// Server wraps an MCPServer around a scene executor.
type Server struct {
	mcp    *mcpserver.MCPServer
	exec   Executor
	logger *slog.Logger
}

// NewServer creates a new MCP server. If exec is nil every tool call returns
// an error response instead of panicking.
func NewServer(exec Executor, logger *slog.Logger) *Server {
	s := &Server{
		exec:   exec,
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"tdf",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildSceneTreeTool(), s.handleSceneTree)
	mcpSrv.AddTool(buildAddProfileTool(), s.handleAddProfile)
	mcpSrv.AddTool(buildAddFolderTool(), s.handleAddFolder)
	mcpSrv.AddTool(buildAddEntityTool(), s.handleAddEntity)
	mcpSrv.AddTool(buildAddComponentTool(), s.handleAddComponent)
	mcpSrv.AddTool(buildUpdateComponentTool(), s.handleUpdateComponent)
	mcpSrv.AddTool(buildRemoveComponentTool(), s.handleRemoveComponent)
	mcpSrv.AddTool(buildRenameTool(), s.handleRename)
	mcpSrv.AddTool(buildRemoveTool(), s.handleRemove)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying server for ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// Exported wrappers so tests can drive handlers without a transport.

func (s *Server) HandleSceneTree(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSceneTree(ctx, req)
}

func (s *Server) HandleAddProfile(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAddProfile(ctx, req)
}

func (s *Server) HandleAddFolder(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAddFolder(ctx, req)
}

func (s *Server) HandleAddEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAddEntity(ctx, req)
}

func (s *Server) HandleAddComponent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAddComponent(ctx, req)
}

func (s *Server) HandleUpdateComponent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleUpdateComponent(ctx, req)
}

func (s *Server) HandleRemoveComponent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRemoveComponent(ctx, req)
}

func (s *Server) HandleRename(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRename(ctx, req)
}

func (s *Server) HandleRemove(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRemove(ctx, req)
}

// toolResultJSON marshals v and wraps it in a text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildSceneTreeTool() mcpgo.Tool {
	return mcpgo.NewTool("scene_tree",
		mcpgo.WithDescription("Return the whole scene hierarchy as a JSON document."),
	)
}

func buildAddProfileTool() mcpgo.Tool {
	return mcpgo.NewTool("add_profile",
		mcpgo.WithDescription("Create a top-level profile category such as Platform, IFF or Radio."),
		mcpgo.WithString("name",
			mcpgo.Required(),
			mcpgo.Description("Display name of the profile category"),
		),
	)
}

func buildAddFolderTool() mcpgo.Tool {
	return mcpgo.NewTool("add_folder",
		mcpgo.WithDescription("Create a folder under a profile category or another folder."),
		mcpgo.WithString("parent_id",
			mcpgo.Required(),
			mcpgo.Description("ID of the parent profile or folder"),
		),
		mcpgo.WithString("name",
			mcpgo.Required(),
			mcpgo.Description("Display name of the folder"),
		),
		mcpgo.WithBoolean("profile_parent",
			mcpgo.Description("True when parent_id names a profile category"),
		),
	)
}

func buildAddEntityTool() mcpgo.Tool {
	return mcpgo.NewTool("add_entity",
		mcpgo.WithDescription("Create an entity. Its kind decides which components it may carry."),
		mcpgo.WithString("parent_id",
			mcpgo.Required(),
			mcpgo.Description("ID of the parent profile or folder"),
		),
		mcpgo.WithString("name",
			mcpgo.Required(),
			mcpgo.Description("Display name of the entity"),
		),
		mcpgo.WithBoolean("profile_parent",
			mcpgo.Description("True when parent_id names a profile category"),
		),
		mcpgo.WithString("kind",
			mcpgo.Description("Entity kind; defaults from the owning profile"),
		),
	)
}

func buildAddComponentTool() mcpgo.Tool {
	return mcpgo.NewTool("add_component",
		mcpgo.WithDescription("Attach a component and its prerequisites to an entity."),
		mcpgo.WithString("entity_id",
			mcpgo.Required(),
			mcpgo.Description("ID of the entity"),
		),
		mcpgo.WithString("component",
			mcpgo.Required(),
			mcpgo.Description("Component name, e.g. transform, rigidbody, trajectory"),
		),
	)
}

func buildUpdateComponentTool() mcpgo.Tool {
	return mcpgo.NewTool("update_component",
		mcpgo.WithDescription("Merge a JSON delta into a component's fields."),
		mcpgo.WithString("entity_id",
			mcpgo.Required(),
			mcpgo.Description("ID of the entity"),
		),
		mcpgo.WithString("component",
			mcpgo.Required(),
			mcpgo.Description("Component name"),
		),
		mcpgo.WithString("delta",
			mcpgo.Required(),
			mcpgo.Description(`JSON object of fields to change, e.g. {"mass": 900}`),
		),
	)
}

func buildRemoveComponentTool() mcpgo.Tool {
	return mcpgo.NewTool("remove_component",
		mcpgo.WithDescription("Detach a component. Components that require it are detached too."),
		mcpgo.WithString("entity_id",
			mcpgo.Required(),
			mcpgo.Description("ID of the entity"),
		),
		mcpgo.WithString("component",
			mcpgo.Required(),
			mcpgo.Description("Component name"),
		),
	)
}

func buildRenameTool() mcpgo.Tool {
	return mcpgo.NewTool("rename",
		mcpgo.WithDescription("Rename a profile, folder or entity."),
		mcpgo.WithString("type",
			mcpgo.Required(),
			mcpgo.Enum("profile", "folder", "entity"),
			mcpgo.Description("Node type"),
		),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("ID of the node"),
		),
		mcpgo.WithString("name",
			mcpgo.Required(),
			mcpgo.Description("New display name"),
		),
	)
}

func buildRemoveTool() mcpgo.Tool {
	return mcpgo.NewTool("remove",
		mcpgo.WithDescription("Remove a profile, folder or entity together with its subtree."),
		mcpgo.WithString("type",
			mcpgo.Required(),
			mcpgo.Enum("profile", "folder", "entity"),
			mcpgo.Description("Node type"),
		),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("ID of the node"),
		),
	)
}

// --- handlers ---

// required reads a non-blank string argument.
func required(req mcpgo.CallToolRequest, key string) (string, *mcpgo.CallToolResult) {
	v := req.GetString(key, "")
	if strings.TrimSpace(v) == "" {
		return "", mcpgo.NewToolResultErrorf("%s is required and must not be empty", key)
	}
	return v, nil
}

// call runs fn through the executor and turns failures into tool errors.
func (s *Server) call(ctx context.Context, op string, fn func(h *scene.Hierarchy) error) *mcpgo.CallToolResult {
	if s.exec == nil {
		return mcpgo.NewToolResultError("scene is unavailable")
	}
	if err := s.exec.Call(ctx, fn); err != nil {
		s.logger.Debug("mcp: tool failed", "op", op, "error", err)
		return mcpgo.NewToolResultErrorf("%s failed: %s", op, err.Error())
	}
	return nil
}

func (s *Server) handleSceneTree(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	var doc scene.Document
	if res := s.call(ctx, "scene_tree", func(h *scene.Hierarchy) error {
		doc = h.ToDocument()
		return nil
	}); res != nil {
		return res, nil
	}
	return toolResultJSON(doc)
}

func (s *Server) handleAddProfile(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	name, bad := required(req, "name")
	if bad != nil {
		return bad, nil
	}
	var id string
	if res := s.call(ctx, "add_profile", func(h *scene.Hierarchy) error {
		p, err := h.AddProfileCategory(name)
		if err != nil {
			return err
		}
		id = p.ID()
		return nil
	}); res != nil {
		return res, nil
	}
	s.logger.Info("mcp: added profile", "id", id, "name", name)
	return toolResultJSON(map[string]any{"id": id})
}

func (s *Server) handleAddFolder(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	parentID, bad := required(req, "parent_id")
	if bad != nil {
		return bad, nil
	}
	name, bad := required(req, "name")
	if bad != nil {
		return bad, nil
	}
	profileParent := req.GetBool("profile_parent", false)

	var id string
	if res := s.call(ctx, "add_folder", func(h *scene.Hierarchy) error {
		f, err := h.AddFolder(parentID, name, profileParent)
		if err != nil {
			return err
		}
		id = f.ID()
		return nil
	}); res != nil {
		return res, nil
	}
	s.logger.Info("mcp: added folder", "id", id, "parent", parentID)
	return toolResultJSON(map[string]any{"id": id})
}

func (s *Server) handleAddEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	parentID, bad := required(req, "parent_id")
	if bad != nil {
		return bad, nil
	}
	name, bad := required(req, "name")
	if bad != nil {
		return bad, nil
	}
	profileParent := req.GetBool("profile_parent", false)

	var opts []scene.AddOption
	if k := req.GetString("kind", ""); k != "" {
		kind, ok := scene.ParseKind(k)
		if !ok {
			return mcpgo.NewToolResultErrorf("invalid kind %q", k), nil
		}
		opts = append(opts, scene.WithKind(kind))
	}

	var (
		id         string
		components []string
	)
	if res := s.call(ctx, "add_entity", func(h *scene.Hierarchy) error {
		e, err := h.AddEntity(parentID, name, profileParent, opts...)
		if err != nil {
			return err
		}
		id = e.ID()
		components = e.Components()
		return nil
	}); res != nil {
		return res, nil
	}
	s.logger.Info("mcp: added entity", "id", id, "parent", parentID)
	return toolResultJSON(map[string]any{"id": id, "components": components})
}

func (s *Server) handleAddComponent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	entityID, bad := required(req, "entity_id")
	if bad != nil {
		return bad, nil
	}
	name, bad := required(req, "component")
	if bad != nil {
		return bad, nil
	}
	var components []string
	if res := s.call(ctx, "add_component", func(h *scene.Hierarchy) error {
		if err := h.AddComponent(entityID, name); err != nil {
			return err
		}
		e, _ := h.Entity(entityID)
		components = e.Components()
		return nil
	}); res != nil {
		return res, nil
	}
	return toolResultJSON(map[string]any{"components": components})
}

func (s *Server) handleUpdateComponent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	entityID, bad := required(req, "entity_id")
	if bad != nil {
		return bad, nil
	}
	name, bad := required(req, "component")
	if bad != nil {
		return bad, nil
	}
	raw, bad := required(req, "delta")
	if bad != nil {
		return bad, nil
	}
	var delta scene.Document
	if err := json.Unmarshal([]byte(raw), &delta); err != nil || delta == nil {
		return mcpgo.NewToolResultError("delta must be a JSON object"), nil
	}

	var doc scene.Document
	if res := s.call(ctx, "update_component", func(h *scene.Hierarchy) error {
		if err := h.UpdateComponent(entityID, name, delta); err != nil {
			return err
		}
		var err error
		doc, err = h.ComponentData(entityID, name)
		return err
	}); res != nil {
		return res, nil
	}
	return toolResultJSON(doc)
}

func (s *Server) handleRemoveComponent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	entityID, bad := required(req, "entity_id")
	if bad != nil {
		return bad, nil
	}
	name, bad := required(req, "component")
	if bad != nil {
		return bad, nil
	}
	var components []string
	if res := s.call(ctx, "remove_component", func(h *scene.Hierarchy) error {
		if err := h.RemoveComponent(entityID, name); err != nil {
			return err
		}
		e, _ := h.Entity(entityID)
		components = e.Components()
		return nil
	}); res != nil {
		return res, nil
	}
	return toolResultJSON(map[string]any{"components": components})
}

func (s *Server) handleRename(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	nodeType, bad := required(req, "type")
	if bad != nil {
		return bad, nil
	}
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}
	name, bad := required(req, "name")
	if bad != nil {
		return bad, nil
	}

	var rename func(h *scene.Hierarchy) error
	switch nodeType {
	case "profile":
		rename = func(h *scene.Hierarchy) error { return h.RenameProfileCategory(id, name) }
	case "folder":
		rename = func(h *scene.Hierarchy) error { return h.RenameFolder(id, name) }
	case "entity":
		rename = func(h *scene.Hierarchy) error { return h.RenameEntity(id, name) }
	default:
		return mcpgo.NewToolResultErrorf("invalid type %q: must be one of profile, folder, entity", nodeType), nil
	}
	if res := s.call(ctx, "rename", rename); res != nil {
		return res, nil
	}
	return toolResultJSON(map[string]any{"renamed": true})
}

func (s *Server) handleRemove(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	nodeType, bad := required(req, "type")
	if bad != nil {
		return bad, nil
	}
	id, bad := required(req, "id")
	if bad != nil {
		return bad, nil
	}

	var remove func(h *scene.Hierarchy) error
	switch nodeType {
	case "profile":
		remove = func(h *scene.Hierarchy) error { return h.RemoveProfileCategory(id) }
	case "folder":
		remove = func(h *scene.Hierarchy) error { return h.RemoveFolder(id) }
	case "entity":
		remove = func(h *scene.Hierarchy) error { return h.RemoveEntity(id) }
	default:
		return mcpgo.NewToolResultErrorf("invalid type %q: must be one of profile, folder, entity", nodeType), nil
	}
	if res := s.call(ctx, "remove", remove); res != nil {
		return res, nil
	}
	s.logger.Info("mcp: removed node", "type", nodeType, "id", id)
	return toolResultJSON(map[string]any{"deleted": true})
}
