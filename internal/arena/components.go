package arena

import "github.com/Matharrr/PSO-in-RTS/internal/agent"

// Position is a unit's location on the XZ plane
type Position struct {
	X, Z float64
}

// Velocity is a unit's planar velocity in units per second
type Velocity struct {
	X, Z float64
}

// Unit links an entity back to its agent slot
type Unit struct {
	Slot int
	Team agent.Team
}

// LayerFilter selects which teams a neighbor query returns
type LayerFilter uint8

const (
	LayerTeamA LayerFilter = 1 << iota
	LayerTeamB

	LayerAll = LayerTeamA | LayerTeamB
)

// Layer returns the filter bit of a team
func Layer(t agent.Team) LayerFilter {
	if t == agent.TeamA {
		return LayerTeamA
	}
	return LayerTeamB
}

// Neighbor is one unit found by QueryNeighbors
type Neighbor struct {
	Slot     int
	Team     agent.Team
	DX, DZ   float64
	Distance float64
}
