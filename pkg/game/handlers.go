package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ifBars/S1MCPServer-sub001/pkg/bridge"
	"github.com/ifBars/S1MCPServer-sub001/pkg/journal"
	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

// Version is the mod version reported by describe.
const Version = "0.4.0"

// LogSource supplies recent game log lines (logtail.Tailer).
type LogSource interface {
	Recent(n int) []string
}

// Deps are the collaborators the handlers consume. Logs, History and
// Inspector are optional capabilities; their methods answer Unavailable when
// absent.
type Deps struct {
	World      *World
	Logs       LogSource
	History    *journal.Store
	Inspector  Inspector
	ServerName string
}

// Register installs all domain handlers on the router. Called once at
// startup, before the bridge starts.
func Register(r *bridge.Router, deps Deps) error {
	if deps.World == nil {
		return fmt.Errorf("register game handlers: nil world")
	}
	h := &handlers{deps: deps, router: r}
	methods := map[string]bridge.HandlerFunc{
		"describe":            h.describe,
		"get_player_status":   h.getPlayerStatus,
		"teleport_player":     h.teleportPlayer,
		"set_player_health":   h.setPlayerHealth,
		"give_item":           h.giveItem,
		"get_inventory":       h.getInventory,
		"get_npc":             h.getNPC,
		"list_npcs":           h.listNPCs,
		"spawn_vehicle":       h.spawnVehicle,
		"list_vehicles":       h.listVehicles,
		"get_property":        h.getProperty,
		"list_properties":     h.listProperties,
		"get_recent_logs":     h.getRecentLogs,
		"get_command_history": h.getCommandHistory,
		"inspect_object":      h.inspectObject,
	}
	for name, fn := range methods {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

type handlers struct {
	deps   Deps
	router *bridge.Router
}

func decode[T any](params json.RawMessage) (T, *protocol.ErrorEnvelope) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, protocol.ValidationError(err.Error())
	}
	return v, nil
}

// describe mirrors the metadata the original mod packed into its handshake:
// server identity plus the registered method catalogue.
func (h *handlers) describe(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	methods := h.router.Methods()
	integrations := map[string]bool{
		"log_tailing":       h.deps.Logs != nil,
		"command_journal":   h.deps.History != nil,
		"object_inspection": h.deps.Inspector != nil,
	}
	return map[string]any{
		"server_name":       h.deps.ServerName,
		"version":           Version,
		"protocol_version":  protocol.Version,
		"available_methods": methods,
		"total_methods":     len(methods),
		"integrations":      integrations,
	}, nil
}

func (h *handlers) getPlayerStatus(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		PlayerID string `json:"player_id"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	player, ok := h.deps.World.Player(req.PlayerID)
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("player %q not found", req.PlayerID), nil)
	}
	return player, nil
}

func (h *handlers) teleportPlayer(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		PlayerID string   `json:"player_id"`
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		Z        *float64 `json:"z"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	if req.X == nil || req.Y == nil || req.Z == nil {
		return nil, protocol.ValidationError("x, y and z are required")
	}
	player, ok := h.deps.World.Player(req.PlayerID)
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("player %q not found", req.PlayerID), nil)
	}
	player.Position = Vec3{X: *req.X, Y: *req.Y, Z: *req.Z}
	return map[string]any{"player_id": player.ID, "position": player.Position}, nil
}

func (h *handlers) setPlayerHealth(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		PlayerID string   `json:"player_id"`
		Health   *float64 `json:"health"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	if req.Health == nil {
		return nil, protocol.ValidationError("health is required")
	}
	if *req.Health < 0 || *req.Health > 100 {
		return nil, protocol.ValidationError("health must be between 0 and 100")
	}
	player, ok := h.deps.World.Player(req.PlayerID)
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("player %q not found", req.PlayerID), nil)
	}
	player.Health = *req.Health
	return map[string]any{"player_id": player.ID, "health": player.Health}, nil
}

func (h *handlers) giveItem(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		PlayerID string `json:"player_id"`
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	if req.ItemID == "" {
		return nil, protocol.ValidationError("item_id is required")
	}
	if req.Quantity <= 0 {
		return nil, protocol.ValidationError("quantity must be positive")
	}
	player, ok := h.deps.World.Player(req.PlayerID)
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("player %q not found", req.PlayerID), nil)
	}
	stack := player.GiveItem(req.ItemID, req.Quantity)
	return map[string]any{"player_id": player.ID, "stack": stack}, nil
}

func (h *handlers) getInventory(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		PlayerID string `json:"player_id"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	player, ok := h.deps.World.Player(req.PlayerID)
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("player %q not found", req.PlayerID), nil)
	}
	return map[string]any{"player_id": player.ID, "inventory": player.Inventory}, nil
}

func (h *handlers) getNPC(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		NPCID string `json:"npc_id"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	if req.NPCID == "" {
		return nil, protocol.ValidationError("npc_id is required")
	}
	npc, ok := h.deps.World.NPCs[req.NPCID]
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("npc %q not found", req.NPCID), nil)
	}
	return npc, nil
}

func (h *handlers) listNPCs(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		Region string `json:"region"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	npcs := make([]*NPC, 0, len(h.deps.World.NPCs))
	for _, npc := range h.deps.World.NPCs {
		if req.Region == "" || npc.Region == req.Region {
			npcs = append(npcs, npc)
		}
	}
	return map[string]any{"npcs": npcs, "count": len(npcs)}, nil
}

func (h *handlers) spawnVehicle(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		Model string   `json:"model"`
		X     *float64 `json:"x"`
		Y     *float64 `json:"y"`
		Z     *float64 `json:"z"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	if req.Model == "" {
		return nil, protocol.ValidationError("model is required")
	}
	pos := Vec3{}
	if req.X != nil && req.Y != nil && req.Z != nil {
		pos = Vec3{X: *req.X, Y: *req.Y, Z: *req.Z}
	}
	return h.deps.World.SpawnVehicle(req.Model, pos), nil
}

func (h *handlers) listVehicles(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	vehicles := make([]*Vehicle, 0, len(h.deps.World.Vehicles))
	for _, v := range h.deps.World.Vehicles {
		vehicles = append(vehicles, v)
	}
	return map[string]any{"vehicles": vehicles, "count": len(vehicles)}, nil
}

func (h *handlers) getProperty(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	req, errEnv := decode[struct {
		PropertyID string `json:"property_id"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	if req.PropertyID == "" {
		return nil, protocol.ValidationError("property_id is required")
	}
	property, ok := h.deps.World.Properties[req.PropertyID]
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("property %q not found", req.PropertyID), nil)
	}
	return property, nil
}

func (h *handlers) listProperties(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	properties := make([]*Property, 0, len(h.deps.World.Properties))
	for _, p := range h.deps.World.Properties {
		properties = append(properties, p)
	}
	return map[string]any{"properties": properties, "count": len(properties)}, nil
}

func (h *handlers) getRecentLogs(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	if h.deps.Logs == nil {
		return nil, protocol.Errorf(protocol.CodeUnavailable, "log tailing not configured", nil)
	}
	req, errEnv := decode[struct {
		Count int `json:"count"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	lines := h.deps.Logs.Recent(req.Count)
	return map[string]any{"lines": lines, "count": len(lines)}, nil
}

func (h *handlers) getCommandHistory(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	if h.deps.History == nil {
		return nil, protocol.Errorf(protocol.CodeUnavailable, "command journal not configured", nil)
	}
	req, errEnv := decode[struct {
		Limit int `json:"limit"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	entries, err := h.deps.History.Recent(ctx, req.Limit)
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeHandlerFailure, err.Error(), nil)
	}
	return map[string]any{"commands": entries, "count": len(entries)}, nil
}

func (h *handlers) inspectObject(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
	if h.deps.Inspector == nil {
		return nil, protocol.Errorf(protocol.CodeUnavailable, "object inspection not available", nil)
	}
	req, errEnv := decode[struct {
		Target string `json:"target"`
	}](params)
	if errEnv != nil {
		return nil, errEnv
	}
	if req.Target == "" {
		return nil, protocol.ValidationError("target is required")
	}
	details, ok := h.deps.Inspector.Inspect(req.Target)
	if !ok {
		return nil, protocol.Errorf(protocol.CodeEntityNotFound, fmt.Sprintf("target %q not found", req.Target), nil)
	}
	return details, nil
}
