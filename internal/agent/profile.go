package agent

import "github.com/Matharrr/PSO-in-RTS/internal/config"

// Profile is a unit type. Integer points convert to real values with fixed multipliers.
type Profile struct {
	Name        string
	AttackPoint int
	FirePoint   int
	DelayPoint  int
	HealthPoint int
	AttackRange float64
}

// ProfilesFromConfig converts the configured roster
func ProfilesFromConfig(cfgs []config.ProfileConfig) []Profile {
	profiles := make([]Profile, len(cfgs))
	for i, c := range cfgs {
		profiles[i] = Profile{
			Name:        c.Name,
			AttackPoint: c.Attack,
			FirePoint:   c.Fire,
			DelayPoint:  c.Delay,
			HealthPoint: c.Health,
			AttackRange: c.AttackRange,
		}
	}
	return profiles
}

func (p Profile) MaxHealth() float64    { return float64(p.HealthPoint) * 50 }
func (p Profile) MeleeDamage() float64  { return float64(p.AttackPoint) * 10 }
func (p Profile) RangedDamage() float64 { return float64(p.FirePoint) * 10 }
func (p Profile) RealDelay() float64    { return (5 - float64(p.DelayPoint)) / 10 }

// AttackPower is the strongest hit this unit can deliver
func (p Profile) AttackPower() float64 {
	return max(p.MeleeDamage(), p.RangedDamage())
}

// Speed returns movement speed; a smaller real delay moves faster
func (p Profile) Speed(scale float64) float64 {
	return (1 - p.RealDelay()) * scale
}

// DecisionInterval returns the seconds between decision ticks
func (p Profile) DecisionInterval(base float64) float64 {
	return base * (1 + p.RealDelay())
}

// RangedReach returns how far ranged attacks travel, falling back to the arena default
func (p Profile) RangedReach(fallback float64) float64 {
	if p.AttackRange > 0 {
		return p.AttackRange
	}
	return fallback
}
