// Package perception builds the fixed-length neuron vector an agent sees each decision tick.
package perception

import (
	"math"

	"github.com/Matharrr/PSO-in-RTS/internal/config"
)

// Bucket counts and vector offsets of the radar layout.
const (
	RegionCount = 4 // 90 degree quadrants
	GridCount   = 8 // 45 degree octants

	offEnemyDist   = 0
	offFriendDist  = 4
	offEnemyCount  = 8
	offFriendCount = 12
	offHealth      = 16
	offDelay       = 17
	offAttack      = 18
	offFire        = 19
	offPrevAction  = 20
	offEnemyGrid   = 21
	offFriendGrid  = 29
	offEnemyDanger = 37
	offEnemyRange  = 41
	BaseSize       = 37
	ExtendedSize   = 45
)

// Vec3 is a world-space offset. Y is vertical and ignored by the radar.
type Vec3 struct {
	X, Y, Z float64
}

// NeighborFact is what the environment reports about one nearby unit
type NeighborFact struct {
	Offset      Vec3 // neighbor position minus observer position
	Teammate    bool
	AttackPower float64
	AttackRange float64
}

// SelfState is the observer's own status. Points are the raw profile points.
type SelfState struct {
	Health      float64
	MaxHealth   float64
	DelayPoint  float64
	AttackPoint float64
	FirePoint   float64
}

// Encoder builds perception vectors
type Encoder struct {
	cfg  config.PerceptionConfig
	size int
}

// NewEncoder creates an encoder for the configured perception variant
func NewEncoder(cfg config.PerceptionConfig) *Encoder {
	size := BaseSize
	if cfg.Extended {
		size = ExtendedSize
	}
	return &Encoder{cfg: cfg, size: size}
}

// Size returns the perception vector length
func (e *Encoder) Size() int {
	return e.size
}

// Encode builds a fresh perception vector. A nil self zero-fills the self fields.
func (e *Encoder) Encode(self *SelfState, neighbors []NeighborFact, prevAction float64) []float64 {
	inputs := make([]float64, e.size)

	var (
		enemyDistSum  [RegionCount]float64
		friendDistSum [RegionCount]float64
		enemyCount    [RegionCount]int
		friendCount   [RegionCount]int
		enemyPower    [RegionCount]float64
		enemyRange    [RegionCount]float64
	)

	for _, n := range neighbors {
		distance := HorizontalDistance(n.Offset)
		if distance > e.cfg.SensorRadius {
			continue
		}
		angle := Bearing(n.Offset)
		region := BucketOf(angle, RegionCount)

		if n.Teammate {
			friendDistSum[region] += distance
			friendCount[region]++
		} else {
			enemyDistSum[region] += distance
			enemyCount[region]++
			enemyPower[region] += n.AttackPower
			enemyRange[region] += n.AttackRange
		}

		if distance <= e.cfg.CloseRadius {
			grid := BucketOf(angle, GridCount)
			if n.Teammate {
				inputs[offFriendGrid+grid] = 1
			} else {
				inputs[offEnemyGrid+grid] = 1
			}
		}
	}

	for r := 0; r < RegionCount; r++ {
		if enemyCount[r] > 0 {
			inputs[offEnemyDist+r] = clamp01(enemyDistSum[r] / float64(enemyCount[r]) / e.cfg.SensorRadius)
		}
		if friendCount[r] > 0 {
			inputs[offFriendDist+r] = clamp01(friendDistSum[r] / float64(friendCount[r]) / e.cfg.SensorRadius)
		}
		inputs[offEnemyCount+r] = clamp01(float64(enemyCount[r]) / e.cfg.MaxPerQuadrant)
		inputs[offFriendCount+r] = clamp01(float64(friendCount[r]) / e.cfg.MaxPerQuadrant)

		if e.cfg.Extended {
			inputs[offEnemyDanger+r] = clamp01(safeDiv(enemyPower[r], e.cfg.DangerNorm))
			inputs[offEnemyRange+r] = clamp01(safeDiv(enemyRange[r], e.cfg.RangeNorm))
		}
	}

	if self != nil {
		inputs[offHealth] = clamp01(safeDiv(self.Health, self.MaxHealth))
		inputs[offDelay] = clamp01(safeDiv(self.DelayPoint, e.cfg.MaxDelayPoint))
		inputs[offAttack] = clamp01(safeDiv(self.AttackPoint, e.cfg.MaxAttackPoint))
		inputs[offFire] = clamp01(safeDiv(self.FirePoint, e.cfg.MaxFirePoint))
	}

	inputs[offPrevAction] = prevAction

	return inputs
}

// Bearing returns the clockwise angle in degrees [0,360) of an offset from the +Z axis
func Bearing(v Vec3) float64 {
	angle := math.Atan2(v.X, v.Z) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}
	return angle
}

// BucketOf maps a bearing into one of n equal-width buckets
func BucketOf(angle float64, n int) int {
	b := int(angle / (360 / float64(n)))
	if b < 0 {
		return 0
	}
	if b > n-1 {
		return n - 1
	}
	return b
}

// HorizontalDistance is the length of the offset projected on the XZ plane
func HorizontalDistance(v Vec3) float64 {
	return math.Hypot(v.X, v.Z)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
