package agent

import (
	"errors"
	"math"
	"testing"

	"github.com/Matharrr/PSO-in-RTS/internal/config"
	"github.com/Matharrr/PSO-in-RTS/internal/nn"
	"github.com/Matharrr/PSO-in-RTS/internal/perception"
)

type fakeBody struct {
	blocked   bool
	target    *Target
	dealt     float64
	moves     int
	stops     int
	damaged   []int
	lastDir   Direction
	lastSpd   float64
	lastReach float64
}

func (b *fakeBody) Sense() (*perception.SelfState, []perception.NeighborFact) {
	return nil, nil
}

func (b *fakeBody) Move(dir Direction, speed float64) bool {
	b.moves++
	b.lastDir = dir
	b.lastSpd = speed
	return b.blocked
}

func (b *fakeBody) Stop() { b.stops++ }

func (b *fakeBody) NearestInCone(dir Direction, reach float64) (Target, bool) {
	b.lastDir = dir
	b.lastReach = reach
	if b.target == nil {
		return Target{}, false
	}
	return *b.target, true
}

func (b *fakeBody) Damage(target int, amount float64) float64 {
	b.damaged = append(b.damaged, target)
	if b.dealt > 0 {
		return b.dealt
	}
	return amount
}

var infantry = Profile{Name: "infantry", AttackPoint: 3, FirePoint: 1, DelayPoint: 3, HealthPoint: 3, AttackRange: 8}

func newTestAgent(t *testing.T, body Body) *Agent {
	t.Helper()
	opts := Options{
		Encoder:     perception.NewEncoder(config.Default().Perception),
		Rewards:     DefaultRewardTable(),
		MeleeReach:  2,
		RangedReach: 12,
		SpeedScale:  10,
	}
	a, err := New(0, TeamA, infantry, make([]float64, nn.GenomeLength(37)), body, opts)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return a
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		outputs []float64
		kind    ActionKind
		dir     Direction
		code    float64
	}{
		{"move forward", []float64{0.2, 0.0, 0.2}, ActionMove, 0, 0.0},
		{"melee back", []float64{0.2, 0.5, 0.8}, ActionMelee, 4, 0.33},
		{"ranged", []float64{0.7, 0.3, 0.1}, ActionRanged, 2, 0.66},
		{"idle", []float64{0.9, 0.9, 0.9}, ActionIdle, 7, 1.0},
		{"threshold is inclusive", []float64{0.5, 0.999, 0.5}, ActionIdle, 7, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := Decode(tt.outputs)
			if act.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", act.Kind, tt.kind)
			}
			if act.Direction != tt.dir {
				t.Errorf("direction = %d, want %d", act.Direction, tt.dir)
			}
			if act.Code() != tt.code {
				t.Errorf("code = %v, want %v", act.Code(), tt.code)
			}
		})
	}
}

func TestDirectionBucketClamps(t *testing.T) {
	if DirectionBucket(1.0) != 7 {
		t.Error("1.0 should clamp to bucket 7")
	}
	if DirectionBucket(-0.1) != 0 {
		t.Error("negative should clamp to bucket 0")
	}
}

func TestDirectionVector(t *testing.T) {
	for d := Direction(0); d < DirectionCount; d++ {
		v := d.Vector()
		bearing := perception.Bearing(v)
		if got := perception.BucketOf(bearing+1e-9, DirectionCount); got != int(d) {
			t.Errorf("direction %d has bearing %v in bucket %d", d, bearing, got)
		}
		if math.Abs(math.Hypot(v.X, v.Z)-1) > 1e-12 {
			t.Errorf("direction %d not unit length", d)
		}
	}
}

func TestNewRejectsWrongGenome(t *testing.T) {
	opts := Options{Encoder: perception.NewEncoder(config.Default().Perception)}
	_, err := New(0, TeamA, infantry, make([]float64, 10), &fakeBody{}, opts)
	if !errors.Is(err, nn.ErrWeightCount) {
		t.Fatalf("expected ErrWeightCount, got %v", err)
	}
}

func TestTickZeroGenomeIdles(t *testing.T) {
	body := &fakeBody{}
	a := newTestAgent(t, body)

	act, err := a.Tick()
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionIdle {
		t.Fatalf("zero genome outputs 0.5 everywhere and should idle, got %v", act.Kind)
	}
	if a.PrevAction() != CodeIdle {
		t.Errorf("prev action = %v, want %v", a.PrevAction(), CodeIdle)
	}
	if a.Fitness() != -1.0 {
		t.Errorf("fitness = %v, want -1", a.Fitness())
	}
	if a.Ledger.Count(RC8Idle) != 1 {
		t.Errorf("RC8 count = %d", a.Ledger.Count(RC8Idle))
	}
}

func TestApplyMove(t *testing.T) {
	body := &fakeBody{}
	a := newTestAgent(t, body)
	a.apply(Action{Kind: ActionMove, Direction: 2})

	if body.moves != 1 || body.lastDir != 2 {
		t.Errorf("move not issued: moves=%d dir=%d", body.moves, body.lastDir)
	}
	if want := infantry.Speed(10); body.lastSpd != want {
		t.Errorf("speed = %v, want %v", body.lastSpd, want)
	}
	if math.Abs(a.Fitness()-0.1) > 1e-12 || a.Ledger.Count(RC1Move) != 1 {
		t.Errorf("expected RC1, fitness=%v", a.Fitness())
	}
}

func TestApplyMoveIntoWall(t *testing.T) {
	body := &fakeBody{blocked: true}
	a := newTestAgent(t, body)
	a.apply(Action{Kind: ActionMove})

	if a.Ledger.Count(RC4Wall) != 1 || a.Ledger.Count(RC1Move) != 0 {
		t.Error("wall move should record RC4 only")
	}
	if body.stops != 1 {
		t.Error("wall move should stop the body")
	}
	if math.Abs(a.Fitness()+0.1) > 1e-12 {
		t.Errorf("fitness = %v, want -0.1", a.Fitness())
	}
}

func TestApplyAttackMiss(t *testing.T) {
	body := &fakeBody{}
	a := newTestAgent(t, body)
	a.apply(Action{Kind: ActionMelee, Direction: 1})

	if body.lastReach != 2 {
		t.Errorf("melee reach = %v, want 2", body.lastReach)
	}
	if a.Fitness() != -infantry.MeleeDamage() {
		t.Errorf("miss fitness = %v, want %v", a.Fitness(), -infantry.MeleeDamage())
	}
	if a.Stats.Misses != 1 {
		t.Errorf("misses = %d", a.Stats.Misses)
	}
}

func TestApplyRangedUsesProfileReach(t *testing.T) {
	body := &fakeBody{}
	a := newTestAgent(t, body)
	a.apply(Action{Kind: ActionRanged})

	if body.lastReach != infantry.AttackRange {
		t.Errorf("ranged reach = %v, want %v", body.lastReach, infantry.AttackRange)
	}
	if a.Fitness() != -infantry.RangedDamage() {
		t.Errorf("ranged miss fitness = %v", a.Fitness())
	}
}

func TestApplyAttackEnemy(t *testing.T) {
	body := &fakeBody{target: &Target{Slot: 40}, dealt: 12}
	a := newTestAgent(t, body)
	a.apply(Action{Kind: ActionMelee})

	if len(body.damaged) != 1 || body.damaged[0] != 40 {
		t.Fatalf("damage not applied to target: %v", body.damaged)
	}
	if a.Fitness() != 12 {
		t.Errorf("RC3 should credit actual damage, fitness=%v", a.Fitness())
	}
	if a.Stats.Hits != 1 || a.Stats.DamageDealt != 12 {
		t.Errorf("hit stats: %+v", a.Stats)
	}
}

func TestApplyAttackTeammate(t *testing.T) {
	body := &fakeBody{target: &Target{Slot: 3, Teammate: true}}
	a := newTestAgent(t, body)
	a.apply(Action{Kind: ActionMelee})

	if len(body.damaged) != 1 {
		t.Fatal("friendly fire still damages the target")
	}
	if a.Fitness() != -infantry.MeleeDamage() {
		t.Errorf("RC5 fitness = %v, want %v", a.Fitness(), -infantry.MeleeDamage())
	}
	if a.Ledger.Count(RC5FriendlyFire) != 1 {
		t.Error("expected one RC5")
	}
}

func TestTakeDamageKills(t *testing.T) {
	a := newTestAgent(t, &fakeBody{})
	maxHP := infantry.MaxHealth()

	if got := a.TakeDamage(100); got != 100 {
		t.Fatalf("dealt = %v", got)
	}
	if a.Dead() {
		t.Fatal("agent should survive 100 of 150")
	}
	if got := a.TakeDamage(100); got != maxHP-100 {
		t.Errorf("overkill should absorb remaining health, got %v", got)
	}
	if !a.Dead() || a.Health() != 0 {
		t.Fatal("agent should be dead")
	}
	if a.Fitness() != -maxHP {
		t.Errorf("fitness = %v, want %v", a.Fitness(), -maxHP)
	}

	// Dead agents neither act nor accumulate
	if _, err := a.Tick(); err != nil {
		t.Fatal(err)
	}
	a.Collide()
	if a.TakeDamage(10) != 0 || a.Fitness() != -maxHP {
		t.Error("dead agent's ledger must stay frozen")
	}
	if a.Stats.Ticks != 0 {
		t.Error("dead agent must not tick")
	}
}

func TestTallyAdd(t *testing.T) {
	hitter := newTestAgent(t, &fakeBody{target: &Target{Slot: 4}, dealt: 12})
	hitter.apply(Action{Kind: ActionMelee})
	hitter.Collide()

	victim := newTestAgent(t, &fakeBody{})
	victim.apply(Action{Kind: ActionIdle})
	victim.TakeDamage(1000)

	var tally Tally
	tally.Add(hitter)
	tally.Add(victim)

	if tally.Agents != 2 || tally.Dead != 1 {
		t.Errorf("agents %d dead %d", tally.Agents, tally.Dead)
	}
	if tally.MeleeAttacks != 1 || tally.Hits != 1 || tally.Idles != 1 || tally.Collisions != 1 {
		t.Errorf("counters %+v", tally)
	}
	if tally.DamageDealt != 12 || tally.DamageTaken != infantry.MaxHealth() {
		t.Errorf("damage dealt %v taken %v", tally.DamageDealt, tally.DamageTaken)
	}
}

func TestLedger(t *testing.T) {
	l := NewLedger(DefaultRewardTable())
	l.Record(RC1Move, 0)
	l.Record(RC2DamageTaken, 20)
	l.Record(RC3DamageDealt, 30)
	l.Record(RC4Wall, 0)
	l.Record(RC5FriendlyFire, 10)
	l.Record(RC6Collision, 0)
	l.Record(RC6Collision, 0)
	l.Record(RC7Miss, 40)
	l.Record(RC8Idle, 0)

	want := 0.1 - 20 + 30 - 0.1 - 10 - 0.1 - 0.1 - 40 - 1.0
	if math.Abs(l.Fitness()-want) > 1e-9 {
		t.Errorf("fitness = %v, want %v", l.Fitness(), want)
	}
	if l.Count(RC6Collision) != 2 {
		t.Errorf("collisions are not deduplicated, got %d", l.Count(RC6Collision))
	}
	if math.Abs(l.Sum(RC6Collision)+0.2) > 1e-12 {
		t.Errorf("RC6 sum = %v", l.Sum(RC6Collision))
	}

	l.Reset()
	if l.Fitness() != 0 || l.Count(RC1Move) != 0 || l.Frozen() {
		t.Error("reset should clear the ledger")
	}
	l.Record(RC1Move, 0)
	if math.Abs(l.Fitness()-0.1) > 1e-12 {
		t.Error("reset must keep the reward table")
	}
}

func TestRewardTableFromConfig(t *testing.T) {
	table := NewRewardTable(config.Default().Rewards)
	if table != DefaultRewardTable() {
		t.Errorf("configured defaults %+v differ from published table %+v", table, DefaultRewardTable())
	}
}

func TestProfileConversions(t *testing.T) {
	p := Profile{AttackPoint: 4, FirePoint: 2, DelayPoint: 1, HealthPoint: 3}
	if p.MaxHealth() != 150 || p.MeleeDamage() != 40 || p.RangedDamage() != 20 {
		t.Errorf("conversions: %v %v %v", p.MaxHealth(), p.MeleeDamage(), p.RangedDamage())
	}
	if math.Abs(p.RealDelay()-0.4) > 1e-12 {
		t.Errorf("real delay = %v", p.RealDelay())
	}
	if math.Abs(p.Speed(10)-6) > 1e-12 {
		t.Errorf("speed = %v", p.Speed(10))
	}
	if p.RangedReach(12) != 12 {
		t.Error("zero attack range should fall back")
	}
	if p.AttackPower() != 40 {
		t.Errorf("attack power = %v", p.AttackPower())
	}
}
