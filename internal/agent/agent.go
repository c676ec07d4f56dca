package agent

import (
	"fmt"

	"github.com/Matharrr/PSO-in-RTS/internal/nn"
	"github.com/Matharrr/PSO-in-RTS/internal/perception"
)

// Target is the result of a cone query
type Target struct {
	Slot     int
	Teammate bool
}

// Body is an agent's handle into the environment
type Body interface {
	// Sense returns an atomic snapshot of the agent's own status and its neighbors.
	Sense() (*perception.SelfState, []perception.NeighborFact)
	// Move sets the agent moving along dir. It reports whether the boundary blocks the move.
	Move(dir Direction, speed float64) (blocked bool)
	// Stop zeroes the agent's velocity.
	Stop()
	// NearestInCone finds the nearest living unit in the 45 degree cone around dir within reach.
	NearestInCone(dir Direction, reach float64) (Target, bool)
	// Damage applies damage to the target slot and returns the amount actually dealt.
	// The target's own RC2 is recorded by the environment.
	Damage(target int, amount float64) float64
}

// Options are the per-engagement constants shared by all agents
type Options struct {
	Encoder     *perception.Encoder
	Rewards     RewardTable
	MeleeReach  float64
	RangedReach float64 // used when a profile has no attack range
	SpeedScale  float64
}

// Stats counts what an agent did during one engagement
type Stats struct {
	Ticks         int
	Moves         int
	WallHits      int
	MeleeAttacks  int
	RangedAttacks int
	Hits          int
	FriendlyHits  int
	Misses        int
	Idles         int
	DamageDealt   float64
}

// Tally sums agent stats and ledger tallies over the agents of an engagement
type Tally struct {
	Stats
	Agents      int
	Dead        int
	Collisions  int
	DamageTaken float64
}

// Add folds one agent into the tally
func (t *Tally) Add(a *Agent) {
	t.Agents++
	if a.dead {
		t.Dead++
	}
	t.Ticks += a.Stats.Ticks
	t.Moves += a.Stats.Moves
	t.WallHits += a.Stats.WallHits
	t.MeleeAttacks += a.Stats.MeleeAttacks
	t.RangedAttacks += a.Stats.RangedAttacks
	t.Hits += a.Stats.Hits
	t.FriendlyHits += a.Stats.FriendlyHits
	t.Misses += a.Stats.Misses
	t.Idles += a.Stats.Idles
	t.DamageDealt += a.Stats.DamageDealt
	t.Collisions += a.Ledger.Count(RC6Collision)
	t.DamageTaken -= a.Ledger.Sum(RC2DamageTaken)
}

// Agent owns one slot's genome network, ledger and body for an engagement
type Agent struct {
	Slot    int
	Team    Team
	Profile Profile
	Genome  []float64
	Ledger  *Ledger
	Stats   Stats

	net        *nn.Network
	body       Body
	opts       Options
	prevAction float64
	health     float64
	dead       bool
}

// New creates an agent. The genome is copied; a length mismatch is fatal.
func New(slot int, team Team, profile Profile, genome []float64, body Body, opts Options) (*Agent, error) {
	g := nn.CloneGenome(genome)
	net, err := nn.NewNetwork(opts.Encoder.Size(), g)
	if err != nil {
		return nil, fmt.Errorf("agent slot %d: %w", slot, err)
	}
	return &Agent{
		Slot:    slot,
		Team:    team,
		Profile: profile,
		Genome:  g,
		Ledger:  NewLedger(opts.Rewards),
		net:     net,
		body:    body,
		opts:    opts,
		health:  profile.MaxHealth(),
	}, nil
}

// Tick runs one decision: sense, encode, infer, decode, act.
// Dead agents do nothing.
func (a *Agent) Tick() (Action, error) {
	if a.dead {
		return Action{Kind: ActionIdle}, nil
	}

	self, neighbors := a.body.Sense()
	inputs := a.opts.Encoder.Encode(self, neighbors, a.prevAction)
	outputs, err := a.net.Forward(inputs)
	if err != nil {
		return Action{}, fmt.Errorf("agent slot %d: %w", a.Slot, err)
	}

	act := Decode(outputs)
	a.prevAction = act.Code()
	a.Stats.Ticks++
	a.apply(act)
	return act, nil
}

func (a *Agent) apply(act Action) {
	switch act.Kind {
	case ActionMove:
		if a.body.Move(act.Direction, a.Profile.Speed(a.opts.SpeedScale)) {
			a.Stats.WallHits++
			a.Ledger.Record(RC4Wall, 0)
			a.body.Stop()
			return
		}
		a.Stats.Moves++
		a.Ledger.Record(RC1Move, 0)

	case ActionMelee:
		a.Stats.MeleeAttacks++
		a.body.Stop()
		a.attack(act.Direction, a.Profile.MeleeDamage(), a.opts.MeleeReach)

	case ActionRanged:
		a.Stats.RangedAttacks++
		a.body.Stop()
		a.attack(act.Direction, a.Profile.RangedDamage(), a.Profile.RangedReach(a.opts.RangedReach))

	case ActionIdle:
		a.Stats.Idles++
		a.body.Stop()
		a.Ledger.Record(RC8Idle, 0)
	}
}

func (a *Agent) attack(dir Direction, damage, reach float64) {
	target, ok := a.body.NearestInCone(dir, reach)
	if !ok {
		a.Stats.Misses++
		a.Ledger.Record(RC7Miss, damage)
		return
	}

	dealt := a.body.Damage(target.Slot, damage)
	if target.Teammate {
		a.Stats.FriendlyHits++
		a.Ledger.Record(RC5FriendlyFire, dealt)
		return
	}
	a.Stats.Hits++
	a.Stats.DamageDealt += dealt
	a.Ledger.Record(RC3DamageDealt, dealt)
}

// TakeDamage lowers health and records RC2. It returns the damage actually absorbed.
func (a *Agent) TakeDamage(amount float64) float64 {
	if a.dead || amount <= 0 {
		return 0
	}
	dealt := min(amount, a.health)
	a.health -= dealt
	a.Ledger.Record(RC2DamageTaken, dealt)
	if a.health <= 0 {
		a.health = 0
		a.dead = true
		a.Ledger.Freeze()
	}
	return dealt
}

// Collide records one collision notification
func (a *Agent) Collide() {
	if a.dead {
		return
	}
	a.Ledger.Record(RC6Collision, 0)
}

// Health returns current health
func (a *Agent) Health() float64 {
	return a.health
}

// Dead reports whether the agent has left the decision loop
func (a *Agent) Dead() bool {
	return a.dead
}

// PrevAction returns the previous-action memory value
func (a *Agent) PrevAction() float64 {
	return a.prevAction
}

// SelfState returns the agent's status as perception input
func (a *Agent) SelfState() *perception.SelfState {
	return &perception.SelfState{
		Health:      a.health,
		MaxHealth:   a.Profile.MaxHealth(),
		DelayPoint:  float64(a.Profile.DelayPoint),
		AttackPoint: float64(a.Profile.AttackPoint),
		FirePoint:   float64(a.Profile.FirePoint),
	}
}

// Fitness returns the ledger total
func (a *Agent) Fitness() float64 {
	return a.Ledger.Fitness()
}
