package arena

import (
	"math"

	"github.com/Matharrr/PSO-in-RTS/internal/agent"
	"github.com/Matharrr/PSO-in-RTS/internal/perception"
)

// body is an agent's handle into the arena. Its methods run inside Run,
// which already holds the arena lock.
type body struct {
	arena *Arena
	slot  int
}

func (b *body) self() *agent.Agent {
	return b.arena.agents[b.slot]
}

func (b *body) position() *Position {
	return b.arena.posMap.Get(b.arena.entities[b.slot])
}

func (b *body) Sense() (*perception.SelfState, []perception.NeighborFact) {
	a := b.arena
	me := b.self()
	pos := b.position()

	hits := a.queryNeighbors(pos.X, pos.Z, a.sensorR, LayerAll, b.slot)
	facts := make([]perception.NeighborFact, len(hits))
	for i, h := range hits {
		other := a.agents[h.Slot]
		facts[i] = perception.NeighborFact{
			Offset:      perception.Vec3{X: h.DX, Z: h.DZ},
			Teammate:    h.Team == me.Team,
			AttackPower: other.Profile.AttackPower(),
			AttackRange: other.Profile.RangedReach(a.cfg.RangedReach),
		}
	}
	return me.SelfState(), facts
}

func (b *body) Move(dir agent.Direction, speed float64) bool {
	a := b.arena
	v := dir.Vector()
	pos := b.position()

	nx, nz := pos.X+v.X*speed*a.cfg.DT, pos.Z+v.Z*speed*a.cfg.DT
	if _, _, blocked := a.clampToBounds(nx, nz); blocked {
		return true
	}

	vel := a.velMap.Get(a.entities[b.slot])
	vel.X, vel.Z = v.X*speed, v.Z*speed
	return false
}

func (b *body) Stop() {
	vel := b.arena.velMap.Get(b.arena.entities[b.slot])
	vel.X, vel.Z = 0, 0
}

// NearestInCone picks the closest living unit whose bearing lies within the
// cone around dir. Self is excluded, so self-damage cannot happen.
func (b *body) NearestInCone(dir agent.Direction, reach float64) (agent.Target, bool) {
	a := b.arena
	me := b.self()
	v := dir.Vector()
	pos := b.position()

	best := -1
	bestDist := math.Inf(1)
	for _, h := range a.queryNeighbors(pos.X, pos.Z, reach, LayerAll, b.slot) {
		if h.Distance == 0 {
			continue
		}
		cos := (h.DX*v.X + h.DZ*v.Z) / h.Distance
		if cos < a.cfg.ConeCos {
			continue
		}
		if h.Distance < bestDist {
			best, bestDist = h.Slot, h.Distance
		}
	}
	if best < 0 {
		return agent.Target{}, false
	}
	return agent.Target{Slot: best, Teammate: a.agents[best].Team == me.Team}, true
}

func (b *body) Damage(target int, amount float64) float64 {
	a := b.arena
	victim := a.agentAt(target)
	if victim == nil {
		return 0
	}
	dealt := victim.TakeDamage(amount)
	if victim.Dead() {
		vel := a.velMap.Get(a.entities[target])
		vel.X, vel.Z = 0, 0
	}
	return dealt
}
