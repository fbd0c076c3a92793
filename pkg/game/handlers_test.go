package game

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ifBars/S1MCPServer-sub001/pkg/bridge"
	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

func newTestHandlers(t *testing.T) (*bridge.Router, *handlers) {
	t.Helper()
	world := NewWorld()
	router := bridge.NewRouter()
	deps := Deps{
		World:      world,
		Inspector:  ProbeInspector(world),
		ServerName: "TestServer",
	}
	if err := Register(router, deps); err != nil {
		t.Fatalf("register: %v", err)
	}
	return router, &handlers{deps: deps, router: router}
}

func call(t *testing.T, router *bridge.Router, method, params string) (any, *protocol.ErrorEnvelope) {
	t.Helper()
	handler := router.Resolve(method)
	if handler == nil {
		t.Fatalf("method %q not registered", method)
	}
	return handler(context.Background(), json.RawMessage(params))
}

func TestGetPlayerStatus(t *testing.T) {
	router, _ := newTestHandlers(t)

	t.Run("defaults to local player", func(t *testing.T) {
		result, errEnv := call(t, router, "get_player_status", `{}`)
		if errEnv != nil {
			t.Fatalf("unexpected error: %+v", errEnv)
		}
		player := result.(*Player)
		if player.ID != "local" {
			t.Fatalf("expected local player, got %q", player.ID)
		}
	})

	t.Run("unknown player", func(t *testing.T) {
		_, errEnv := call(t, router, "get_player_status", `{"player_id":"ghost"}`)
		if errEnv == nil || errEnv.Code != protocol.CodeEntityNotFound {
			t.Fatalf("expected EntityNotFound, got %+v", errEnv)
		}
	})
}

func TestTeleportPlayer(t *testing.T) {
	router, h := newTestHandlers(t)

	t.Run("moves the player", func(t *testing.T) {
		_, errEnv := call(t, router, "teleport_player", `{"x":1.5,"y":2.0,"z":-3.0}`)
		if errEnv != nil {
			t.Fatalf("unexpected error: %+v", errEnv)
		}
		player, _ := h.deps.World.Player("local")
		if player.Position != (Vec3{X: 1.5, Y: 2.0, Z: -3.0}) {
			t.Fatalf("position not updated: %+v", player.Position)
		}
	})

	t.Run("missing coordinates", func(t *testing.T) {
		_, errEnv := call(t, router, "teleport_player", `{"x":1.0}`)
		if errEnv == nil || errEnv.Code != protocol.CodeInvalidParams {
			t.Fatalf("expected validation error, got %+v", errEnv)
		}
		data := errEnv.Data.(map[string]any)
		if data["reason"] == "" {
			t.Fatal("expected data.reason")
		}
	})
}

func TestGiveItemMergesStacks(t *testing.T) {
	router, h := newTestHandlers(t)

	if _, errEnv := call(t, router, "give_item", `{"item_id":"baggie","quantity":5}`); errEnv != nil {
		t.Fatalf("unexpected error: %+v", errEnv)
	}
	player, _ := h.deps.World.Player("local")
	if len(player.Inventory) != 1 || player.Inventory[0].Quantity != 25 {
		t.Fatalf("expected merged stack of 25, got %+v", player.Inventory)
	}

	if _, errEnv := call(t, router, "give_item", `{"item_id":"cash","quantity":0}`); errEnv == nil {
		t.Fatal("expected validation error for zero quantity")
	}
}

func TestSetPlayerHealthBounds(t *testing.T) {
	router, _ := newTestHandlers(t)
	_, errEnv := call(t, router, "set_player_health", `{"health":250}`)
	if errEnv == nil || errEnv.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected validation error, got %+v", errEnv)
	}
}

func TestNPCLookup(t *testing.T) {
	router, _ := newTestHandlers(t)

	result, errEnv := call(t, router, "get_npc", `{"npc_id":"kyle_cooley"}`)
	if errEnv != nil {
		t.Fatalf("unexpected error: %+v", errEnv)
	}
	if result.(*NPC).Name != "Kyle Cooley" {
		t.Fatalf("unexpected npc: %+v", result)
	}

	result, errEnv = call(t, router, "list_npcs", `{"region":"downtown"}`)
	if errEnv != nil {
		t.Fatalf("unexpected error: %+v", errEnv)
	}
	listing := result.(map[string]any)
	if listing["count"].(int) != 1 {
		t.Fatalf("expected one downtown npc, got %v", listing["count"])
	}
}

func TestSpawnVehicle(t *testing.T) {
	router, h := newTestHandlers(t)
	result, errEnv := call(t, router, "spawn_vehicle", `{"model":"shitbox","x":1,"y":0,"z":1}`)
	if errEnv != nil {
		t.Fatalf("unexpected error: %+v", errEnv)
	}
	vehicle := result.(*Vehicle)
	if vehicle.Model != "shitbox" || h.deps.World.Vehicles[vehicle.ID] == nil {
		t.Fatalf("vehicle not spawned: %+v", vehicle)
	}
}

func TestCapabilityMethodsUnavailable(t *testing.T) {
	world := NewWorld()
	router := bridge.NewRouter()
	if err := Register(router, Deps{World: world, ServerName: "TestServer"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, method := range []string{"get_recent_logs", "get_command_history", "inspect_object"} {
		_, errEnv := call(t, router, method, `{}`)
		if errEnv == nil || errEnv.Code != protocol.CodeUnavailable {
			t.Fatalf("%s: expected Unavailable, got %+v", method, errEnv)
		}
	}
}

func TestInspectObject(t *testing.T) {
	router, _ := newTestHandlers(t)

	result, errEnv := call(t, router, "inspect_object", `{"target":"npc:kyle_cooley"}`)
	if errEnv != nil {
		t.Fatalf("unexpected error: %+v", errEnv)
	}
	details := result.(map[string]any)
	if details["type"] != "NPC" {
		t.Fatalf("expected NPC details, got %+v", details)
	}
	fields := details["fields"].(map[string]any)
	if fields["Name"] != "Kyle Cooley" {
		t.Fatalf("expected reflected Name field, got %+v", fields)
	}

	_, errEnv = call(t, router, "inspect_object", `{"target":"npc:nobody"}`)
	if errEnv == nil || errEnv.Code != protocol.CodeEntityNotFound {
		t.Fatalf("expected EntityNotFound, got %+v", errEnv)
	}
}

func TestDescribe(t *testing.T) {
	router, _ := newTestHandlers(t)
	result, errEnv := call(t, router, "describe", `{}`)
	if errEnv != nil {
		t.Fatalf("unexpected error: %+v", errEnv)
	}
	info := result.(map[string]any)
	if info["server_name"] != "TestServer" {
		t.Fatalf("unexpected server name: %v", info["server_name"])
	}
	methods := info["available_methods"].([]string)
	if len(methods) == 0 || info["total_methods"].(int) != len(methods) {
		t.Fatalf("method catalogue mismatch: %+v", info)
	}
}
