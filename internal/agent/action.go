// Package agent turns network outputs into battle behavior and keeps each agent's fitness ledger.
package agent

import (
	"math"

	"github.com/Matharrr/PSO-in-RTS/internal/perception"
)

// Team identifies one side of the battle
type Team int

const (
	TeamA Team = iota
	TeamB
)

func (t Team) String() string {
	switch t {
	case TeamA:
		return "A"
	case TeamB:
		return "B"
	default:
		return "unknown"
	}
}

// Direction is one of 8 compass directions, 0=forward (+Z), clockwise in 45 degree steps
type Direction int

const DirectionCount = 8

// Vector returns the unit vector of the direction on the XZ plane
func (d Direction) Vector() perception.Vec3 {
	rad := float64(d) * (2 * math.Pi / DirectionCount)
	return perception.Vec3{X: math.Sin(rad), Z: math.Cos(rad)}
}

// ActionKind is the discrete behavior chosen for a tick
type ActionKind int

const (
	ActionMove ActionKind = iota
	ActionMelee
	ActionRanged
	ActionIdle
)

func (k ActionKind) String() string {
	switch k {
	case ActionMove:
		return "move"
	case ActionMelee:
		return "melee"
	case ActionRanged:
		return "ranged"
	case ActionIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Previous-action codes fed back into perception neuron 20.
const (
	CodeMove   = 0.0
	CodeMelee  = 0.33
	CodeRanged = 0.66
	CodeIdle   = 1.0
)

// Action is a decoded decision
type Action struct {
	Kind      ActionKind
	Direction Direction
}

// Code returns the previous-action memory value for this action
func (a Action) Code() float64 {
	switch a.Kind {
	case ActionMelee:
		return CodeMelee
	case ActionRanged:
		return CodeRanged
	case ActionIdle:
		return CodeIdle
	default:
		return CodeMove
	}
}

// Decode maps outputs (o0, o1, o2) to an action.
// o0 is the fire intent, o2 the attack intent, o1 selects the direction.
func Decode(outputs []float64) Action {
	o0, o1, o2 := outputs[0], outputs[1], outputs[2]
	act := Action{Direction: DirectionBucket(o1)}

	switch {
	case o0 < 0.5 && o2 < 0.5:
		act.Kind = ActionMove
	case o0 < 0.5:
		act.Kind = ActionMelee
	case o2 < 0.5:
		act.Kind = ActionRanged
	default:
		act.Kind = ActionIdle
	}
	return act
}

// DirectionBucket maps [0,1) into 8 equal slots
func DirectionBucket(o float64) Direction {
	b := int(math.Floor(o * DirectionCount))
	if b < 0 {
		b = 0
	}
	if b > DirectionCount-1 {
		b = DirectionCount - 1
	}
	return Direction(b)
}
