// Package game holds the simulated host state the bridge mutates and the
// domain handlers exposed to the peer. Everything here runs on the host tick
// only; none of it is safe for concurrent use, and none of it needs to be.
package game

import "fmt"

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ItemStack is one inventory slot.
type ItemStack struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Player is the controllable character.
type Player struct {
	ID        string      `json:"player_id"`
	Name      string      `json:"name"`
	Position  Vec3        `json:"position"`
	Health    float64     `json:"health"`
	Energy    float64     `json:"energy"`
	Money     int         `json:"money"`
	Inventory []ItemStack `json:"inventory"`
}

// NPC is a non-player character.
type NPC struct {
	ID       string `json:"npc_id"`
	Name     string `json:"name"`
	Region   string `json:"region"`
	Position Vec3   `json:"position"`
}

// Vehicle is a spawned vehicle.
type Vehicle struct {
	ID       string `json:"vehicle_id"`
	Model    string `json:"model"`
	Position Vec3   `json:"position"`
}

// Property is a purchasable building.
type Property struct {
	ID    string `json:"property_id"`
	Name  string `json:"name"`
	Price int    `json:"price"`
	Owned bool   `json:"owned"`
}

// World is the in-memory host state.
type World struct {
	Players    map[string]*Player
	NPCs       map[string]*NPC
	Vehicles   map[string]*Vehicle
	Properties map[string]*Property

	vehicleSeq int
}

// NewWorld seeds a small world so the daemon is usable without a live game.
func NewWorld() *World {
	w := &World{
		Players:    make(map[string]*Player),
		NPCs:       make(map[string]*NPC),
		Vehicles:   make(map[string]*Vehicle),
		Properties: make(map[string]*Property),
	}
	w.Players["local"] = &Player{
		ID: "local", Name: "Player One",
		Position: Vec3{X: 12.5, Y: 1.0, Z: -3.25},
		Health:   100, Energy: 100, Money: 1250,
		Inventory: []ItemStack{{ItemID: "baggie", Quantity: 20}},
	}
	w.NPCs["kyle_cooley"] = &NPC{
		ID: "kyle_cooley", Name: "Kyle Cooley", Region: "northtown",
		Position: Vec3{X: 10.5, Y: 1.0, Z: 20.3},
	}
	w.NPCs["anna_chesterfield"] = &NPC{
		ID: "anna_chesterfield", Name: "Anna Chesterfield", Region: "downtown",
		Position: Vec3{X: -42.0, Y: 1.0, Z: 7.8},
	}
	w.Properties["motel_room"] = &Property{
		ID: "motel_room", Name: "Motel Room", Price: 0, Owned: true,
	}
	w.Properties["sweatshop"] = &Property{
		ID: "sweatshop", Name: "Sweatshop", Price: 3000, Owned: false,
	}
	return w
}

// Player returns the player for id, defaulting empty id to "local".
func (w *World) Player(id string) (*Player, bool) {
	if id == "" {
		id = "local"
	}
	p, ok := w.Players[id]
	return p, ok
}

// SpawnVehicle creates a vehicle at pos and returns it.
func (w *World) SpawnVehicle(model string, pos Vec3) *Vehicle {
	w.vehicleSeq++
	v := &Vehicle{
		ID:       fmt.Sprintf("veh_%d", w.vehicleSeq),
		Model:    model,
		Position: pos,
	}
	w.Vehicles[v.ID] = v
	return v
}

// GiveItem adds quantity of itemID to the player's inventory, merging into
// an existing stack when present.
func (p *Player) GiveItem(itemID string, quantity int) ItemStack {
	for i := range p.Inventory {
		if p.Inventory[i].ItemID == itemID {
			p.Inventory[i].Quantity += quantity
			return p.Inventory[i]
		}
	}
	stack := ItemStack{ItemID: itemID, Quantity: quantity}
	p.Inventory = append(p.Inventory, stack)
	return stack
}
