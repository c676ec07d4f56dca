package agent

import (
	"fmt"

	"github.com/Matharrr/PSO-in-RTS/internal/config"
)

// RewardCode is a reward/cost category
type RewardCode int

const (
	RC1Move         RewardCode = iota + 1 // successful move tick
	RC2DamageTaken                        // damage received
	RC3DamageDealt                        // damage dealt to an enemy
	RC4Wall                               // hit the arena boundary while moving
	RC5FriendlyFire                       // damage dealt to a teammate
	RC6Collision                          // physical contact with another agent
	RC7Miss                               // attack resolved against no target
	RC8Idle                               // fire and attack intent both active
)

const rewardCodeCount = 8

func (c RewardCode) String() string {
	if c < RC1Move || c > RC8Idle {
		return "RC?"
	}
	return fmt.Sprintf("RC%d", int(c))
}

// RewardTable holds the flat magnitudes. Damage based codes use the event magnitude.
type RewardTable struct {
	Move      float64
	Wall      float64
	Collision float64
	Idle      float64
}

// DefaultRewardTable returns the published reward magnitudes
func DefaultRewardTable() RewardTable {
	return RewardTable{Move: 0.1, Wall: 0.1, Collision: 0.1, Idle: 1.0}
}

// NewRewardTable builds a table from configuration
func NewRewardTable(cfg config.RewardConfig) RewardTable {
	return RewardTable{
		Move:      cfg.Move,
		Wall:      cfg.Wall,
		Collision: cfg.Collision,
		Idle:      cfg.Idle,
	}
}

// Delta returns the signed fitness change of one event
func (t RewardTable) Delta(code RewardCode, magnitude float64) float64 {
	switch code {
	case RC1Move:
		return t.Move
	case RC2DamageTaken, RC5FriendlyFire, RC7Miss:
		return -magnitude
	case RC3DamageDealt:
		return magnitude
	case RC4Wall:
		return -t.Wall
	case RC6Collision:
		return -t.Collision
	case RC8Idle:
		return -t.Idle
	default:
		return 0
	}
}

// Ledger accumulates one agent slot's fitness for one engagement
type Ledger struct {
	table  RewardTable
	total  float64
	counts [rewardCodeCount]int
	sums   [rewardCodeCount]float64
	frozen bool
}

// NewLedger creates an empty ledger
func NewLedger(table RewardTable) *Ledger {
	return &Ledger{table: table}
}

// Record applies one reward event. Events after Freeze are ignored.
func (l *Ledger) Record(code RewardCode, magnitude float64) {
	if l.frozen || code < RC1Move || code > RC8Idle {
		return
	}
	d := l.table.Delta(code, magnitude)
	l.total += d
	l.counts[code-1]++
	l.sums[code-1] += d
}

// Reset zeroes the ledger for a new engagement
func (l *Ledger) Reset() {
	table := l.table
	*l = Ledger{table: table}
}

// Freeze stops accumulation; used when the agent dies
func (l *Ledger) Freeze() {
	l.frozen = true
}

// Frozen reports whether the ledger stopped accumulating
func (l *Ledger) Frozen() bool {
	return l.frozen
}

// Fitness returns the accumulated score
func (l *Ledger) Fitness() float64 {
	return l.total
}

// Count returns how many events of a code were recorded
func (l *Ledger) Count(code RewardCode) int {
	if code < RC1Move || code > RC8Idle {
		return 0
	}
	return l.counts[code-1]
}

// Sum returns the signed contribution of a code to the fitness
func (l *Ledger) Sum(code RewardCode) float64 {
	if code < RC1Move || code > RC8Idle {
		return 0
	}
	return l.sums[code-1]
}
