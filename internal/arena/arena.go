// Package arena is a headless, fixed-step battle environment for evaluating genomes.
//
// Units live in an ECS world (position, velocity, unit tag). A single driving
// loop fires each agent's decision tick at its own cadence, integrates
// movement, clamps units to the arena bounds and reports contact-begin
// collisions. Everything runs on one goroutine per engagement so a tick's
// perception is an atomic snapshot and no damage or collision is counted twice.
package arena

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/Matharrr/PSO-in-RTS/internal/agent"
	"github.com/Matharrr/PSO-in-RTS/internal/config"
	"github.com/Matharrr/PSO-in-RTS/internal/perception"
)

const tickEpsilon = 1e-9

type contactKey [2]int

// Arena implements the environment collaborator of the training pipeline
type Arena struct {
	cfg       config.ArenaConfig
	sensorR   float64
	profiles  []agent.Profile
	opts      agent.Options
	rng       *rand.Rand
	halfW     float64
	halfD     float64
	mu        sync.Mutex
	collision float64 // contact distance between two unit centers

	world      *ecs.World
	unitMapper *ecs.Map3[Position, Velocity, Unit]
	unitFilter *ecs.Filter3[Position, Velocity, Unit]
	posMap     *ecs.Map1[Position]
	velMap     *ecs.Map1[Velocity]

	agents   []*agent.Agent // indexed by slot, nil for empty slots
	entities []ecs.Entity
	nextTick []float64
	contacts map[contactKey]bool
	grid     *spatialGrid
	clock    float64
}

// New creates an arena. rng is the shared random source; callers reseed it before each run.
func New(cfg *config.Config, rng *rand.Rand) *Arena {
	world := ecs.NewWorld()

	a := &Arena{
		cfg:       cfg.Arena,
		sensorR:   cfg.Perception.SensorRadius,
		profiles:  agent.ProfilesFromConfig(cfg.Profiles),
		rng:       rng,
		halfW:     cfg.Arena.Width / 2,
		halfD:     cfg.Arena.Depth / 2,
		collision: 2 * cfg.Arena.BodyRadius,
		opts: agent.Options{
			Encoder:     perception.NewEncoder(cfg.Perception),
			Rewards:     agent.NewRewardTable(cfg.Rewards),
			MeleeReach:  cfg.Arena.MeleeReach,
			RangedReach: cfg.Arena.RangedReach,
			SpeedScale:  cfg.Arena.SpeedScale,
		},
		world:      world,
		unitMapper: ecs.NewMap3[Position, Velocity, Unit](world),
		unitFilter: ecs.NewFilter3[Position, Velocity, Unit](world),
		posMap:     ecs.NewMap1[Position](world),
		velMap:     ecs.NewMap1[Velocity](world),
		contacts:   make(map[contactKey]bool),
	}

	cellSize := max(cfg.Arena.MeleeReach, a.collision, 1)
	a.grid = newSpatialGrid(cfg.Arena.Width, cfg.Arena.Depth, cellSize)
	return a
}

// Clear removes every unit and its entity from the battlefield
func (a *Arena) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for slot, ag := range a.agents {
		if ag != nil && a.world.Alive(a.entities[slot]) {
			a.world.RemoveEntity(a.entities[slot])
		}
	}
	a.agents = a.agents[:0]
	a.entities = a.entities[:0]
	a.nextTick = a.nextTick[:0]
	clear(a.contacts)
	a.grid.clear()
	a.clock = 0
}

// Spawn places an agent for the given slot with a copy of genome.
// The unit profile and spawn position are drawn from the shared random source.
func (a *Arena) Spawn(team agent.Team, genome []float64, slot int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if slot < 0 {
		return fmt.Errorf("arena: negative slot %d", slot)
	}
	a.growTo(slot + 1)
	if a.agents[slot] != nil {
		return fmt.Errorf("arena: slot %d already occupied", slot)
	}

	profile := a.profiles[a.rng.Intn(len(a.profiles))]

	centerX := -a.cfg.TeamOffset
	if team == agent.TeamB {
		centerX = a.cfg.TeamOffset
	}
	pos := Position{
		X: centerX + (a.rng.Float64()*2-1)*a.cfg.SpawnSpreadX,
		Z: (a.rng.Float64()*2 - 1) * a.cfg.SpawnSpreadZ,
	}
	pos.X, pos.Z, _ = a.clampToBounds(pos.X, pos.Z)

	ag, err := agent.New(slot, team, profile, genome, &body{arena: a, slot: slot}, a.opts)
	if err != nil {
		return err
	}

	vel := Velocity{}
	unit := Unit{Slot: slot, Team: team}
	a.entities[slot] = a.unitMapper.NewEntity(&pos, &vel, &unit)
	a.agents[slot] = ag
	a.nextTick[slot] = 0
	return nil
}

func (a *Arena) growTo(n int) {
	for len(a.agents) < n {
		a.agents = append(a.agents, nil)
		a.entities = append(a.entities, ecs.Entity{})
		a.nextTick = append(a.nextTick, 0)
	}
}

// Run simulates a fixed-duration engagement. Simulated time is used, not wall-clock.
func (a *Arena) Run(duration time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dt := a.cfg.DT
	steps := int(math.Round(duration.Seconds() / dt))

	a.rebuildGrid()
	for step := 0; step < steps; step++ {
		a.clock = float64(step) * dt

		for slot, ag := range a.agents {
			if ag == nil || ag.Dead() || a.nextTick[slot] > a.clock+tickEpsilon {
				continue
			}
			if _, err := ag.Tick(); err != nil {
				return fmt.Errorf("arena: tick at %.2fs: %w", a.clock, err)
			}
			a.nextTick[slot] += max(ag.Profile.DecisionInterval(a.cfg.DecisionInterval), dt)
		}

		a.integrate(dt)
		a.rebuildGrid()
		a.detectCollisions()
	}
	a.clock = float64(steps) * dt

	tally := a.tally()
	slog.Debug("engagement finished",
		"sim_seconds", a.clock,
		"alive_a", a.aliveCount(agent.TeamA),
		"alive_b", a.aliveCount(agent.TeamB),
		"dead", tally.Dead,
		"ticks", tally.Ticks,
		"moves", tally.Moves,
		"wall_hits", tally.WallHits,
		"melee", tally.MeleeAttacks,
		"ranged", tally.RangedAttacks,
		"hits", tally.Hits,
		"friendly_hits", tally.FriendlyHits,
		"misses", tally.Misses,
		"idles", tally.Idles,
		"collisions", tally.Collisions,
		"damage_dealt", tally.DamageDealt,
		"damage_taken", tally.DamageTaken,
	)
	return nil
}

// Tally sums the stats of every agent in the current engagement
func (a *Arena) Tally() agent.Tally {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tally()
}

func (a *Arena) tally() agent.Tally {
	var t agent.Tally
	for _, ag := range a.agents {
		if ag != nil {
			t.Add(ag)
		}
	}
	return t
}

// integrate advances positions and stops units at the boundary
func (a *Arena) integrate(dt float64) {
	query := a.unitFilter.Query()
	for query.Next() {
		pos, vel, unit := query.Get()
		if ag := a.agents[unit.Slot]; ag == nil || ag.Dead() {
			vel.X, vel.Z = 0, 0
			continue
		}
		x, z, clamped := a.clampToBounds(pos.X+vel.X*dt, pos.Z+vel.Z*dt)
		pos.X, pos.Z = x, z
		if clamped {
			vel.X, vel.Z = 0, 0
		}
	}
}

func (a *Arena) rebuildGrid() {
	a.grid.clear()
	for slot, ag := range a.agents {
		if ag == nil || ag.Dead() {
			continue
		}
		pos := a.posMap.Get(a.entities[slot])
		a.grid.insert(slot, pos.X, pos.Z)
	}
}

// detectCollisions notifies each contact that began this step
func (a *Arena) detectCollisions() {
	current := make(map[contactKey]bool)
	for slot, ag := range a.agents {
		if ag == nil || ag.Dead() {
			continue
		}
		pos := a.posMap.Get(a.entities[slot])
		a.grid.query(pos.X, pos.Z, a.collision, func(other int) {
			if other <= slot || a.agents[other].Dead() {
				return
			}
			op := a.posMap.Get(a.entities[other])
			if math.Hypot(op.X-pos.X, op.Z-pos.Z) < a.collision {
				current[contactKey{slot, other}] = true
			}
		})
	}

	// Notify in slot order for reproducibility
	for slot := range a.agents {
		for other := slot + 1; other < len(a.agents); other++ {
			key := contactKey{slot, other}
			if current[key] && !a.contacts[key] {
				a.notifyCollision(slot, other)
			}
		}
	}
	a.contacts = current
}

// NotifyCollision records one collision event on both agents
func (a *Arena) NotifyCollision(slotA, slotB int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifyCollision(slotA, slotB)
}

func (a *Arena) notifyCollision(slotA, slotB int) {
	if ag := a.agentAt(slotA); ag != nil {
		ag.Collide()
	}
	if ag := a.agentAt(slotB); ag != nil {
		ag.Collide()
	}
}

// QueryNeighbors returns living units within radius of position whose team passes filter
func (a *Arena) QueryNeighbors(position perception.Vec3, radius float64, filter LayerFilter) []Neighbor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queryNeighbors(position.X, position.Z, radius, filter, -1)
}

func (a *Arena) queryNeighbors(x, z, radius float64, filter LayerFilter, exclude int) []Neighbor {
	var out []Neighbor
	a.grid.query(x, z, radius, func(slot int) {
		ag := a.agents[slot]
		if slot == exclude || ag.Dead() || filter&Layer(ag.Team) == 0 {
			return
		}
		pos := a.posMap.Get(a.entities[slot])
		dx, dz := pos.X-x, pos.Z-z
		d := math.Hypot(dx, dz)
		if d > radius {
			return
		}
		out = append(out, Neighbor{Slot: slot, Team: ag.Team, DX: dx, DZ: dz, Distance: d})
	})
	return out
}

// AliveCount returns the number of living agents on a team
func (a *Arena) AliveCount(team agent.Team) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aliveCount(team)
}

func (a *Arena) aliveCount(team agent.Team) int {
	n := 0
	for _, ag := range a.agents {
		if ag != nil && ag.Team == team && !ag.Dead() {
			n++
		}
	}
	return n
}

// Fitness returns the ledger total of a slot; empty slots report 0
func (a *Arena) Fitness(slot int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ag := a.agentAt(slot); ag != nil {
		return ag.Fitness()
	}
	return 0
}

// Agent returns the agent in a slot, or nil
func (a *Arena) Agent(slot int) *agent.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.agentAt(slot)
}

// Clock returns the simulated seconds elapsed in the current engagement
func (a *Arena) Clock() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clock
}

func (a *Arena) agentAt(slot int) *agent.Agent {
	if slot < 0 || slot >= len(a.agents) {
		return nil
	}
	return a.agents[slot]
}

// clampToBounds keeps a point inside the arena and reports whether it had to move it
func (a *Arena) clampToBounds(x, z float64) (float64, float64, bool) {
	limitX := a.halfW - a.cfg.BodyRadius
	limitZ := a.halfD - a.cfg.BodyRadius
	cx := math.Max(-limitX, math.Min(limitX, x))
	cz := math.Max(-limitZ, math.Min(limitZ, z))
	return cx, cz, cx != x || cz != z
}
