package game

import (
	"fmt"
	"reflect"
	"strings"
)

// Inspector is the capability-checked collaborator behind inspect_object.
// Implementations return (details, true) when they can describe the target
// and (nil, false) when they cannot; absence of an inspector entirely makes
// the method answer Unavailable.
type Inspector interface {
	Inspect(target string) (map[string]any, bool)
}

// ProbeInspector selects an inspector once at startup. The in-tree fallback
// walks world objects with reflection; a live game build would plug a
// UnityExplorer-style integration in instead.
func ProbeInspector(world *World) Inspector {
	if world == nil {
		return nil
	}
	return &reflectInspector{world: world}
}

type reflectInspector struct {
	world *World
}

// Inspect resolves targets of the form "kind:id" (player:local,
// npc:kyle_cooley, vehicle:veh_1, property:motel_room) or "world".
func (ri *reflectInspector) Inspect(target string) (map[string]any, bool) {
	if target == "world" {
		return map[string]any{
			"type":       "World",
			"players":    len(ri.world.Players),
			"npcs":       len(ri.world.NPCs),
			"vehicles":   len(ri.world.Vehicles),
			"properties": len(ri.world.Properties),
		}, true
	}
	kind, id, ok := strings.Cut(target, ":")
	if !ok {
		return nil, false
	}
	var obj any
	switch kind {
	case "player":
		if p, found := ri.world.Player(id); found {
			obj = p
		}
	case "npc":
		if n, found := ri.world.NPCs[id]; found {
			obj = n
		}
	case "vehicle":
		if v, found := ri.world.Vehicles[id]; found {
			obj = v
		}
	case "property":
		if p, found := ri.world.Properties[id]; found {
			obj = p
		}
	}
	if obj == nil {
		return nil, false
	}
	return describeValue(reflect.ValueOf(obj), 0), true
}

// describeValue flattens a struct into field name → value/type pairs, two
// levels deep.
func describeValue(v reflect.Value, depth int) map[string]any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	out := map[string]any{"type": v.Type().Name()}
	if v.Kind() != reflect.Struct {
		out["value"] = fmt.Sprint(v.Interface())
		return out
	}
	fields := make(map[string]any, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		if !field.IsExported() {
			continue
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			if depth < 2 {
				fields[field.Name] = describeValue(fv, depth+1)
			} else {
				fields[field.Name] = fmt.Sprint(fv.Interface())
			}
		case reflect.Slice, reflect.Map:
			fields[field.Name] = map[string]any{
				"type": fv.Type().String(),
				"len":  fv.Len(),
			}
		default:
			fields[field.Name] = fv.Interface()
		}
	}
	out["fields"] = fields
	return out
}
