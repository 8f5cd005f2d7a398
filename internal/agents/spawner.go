// Agent spawning: tier assignment and starting balance and drones.
package agents

import (
	"fmt"

	"github.com/talgya/swarm-economy/internal/entropy"
)

// SpawnConfig controls the limits stamped onto every new agent.
type SpawnConfig struct {
	MaxConcurrent int // Concurrent activity cap (default 5)
	MaxDrones     int // Drone ceiling per agent
}

// Spawner creates agents for the simulation.
type Spawner struct {
	rng     *entropy.Rand
	cfg     SpawnConfig
	weights []float64
	nextID  AgentID
}

// NewSpawner creates a spawner drawing from rng.
func NewSpawner(rng *entropy.Rand, cfg SpawnConfig) *Spawner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.MaxDrones < 0 {
		cfg.MaxDrones = 0
	}
	return &Spawner{
		rng:     rng,
		cfg:     cfg,
		weights: SpawnWeights(),
		nextID:  1,
	}
}

// Spawn creates one agent joining at tick with a tier drawn from the
// weighted tier distribution.
func (s *Spawner) Spawn(tick uint64) *Agent {
	tier := Tier(s.rng.Weighted(s.weights))
	if int(tier) >= NumTiers {
		tier = TierNovice
	}
	return s.SpawnTier(tick, tier)
}

// SpawnTier creates one agent of a specific tier.
func (s *Spawner) SpawnTier(tick uint64, tier Tier) *Agent {
	id := s.nextID
	s.nextID++

	prof := TierProfileFor(tier)

	drones := s.rng.Between(prof.DroneRange[0], prof.DroneRange[1])
	if drones > s.cfg.MaxDrones {
		drones = s.cfg.MaxDrones
	}

	prefs := make([]ActivityKind, len(prof.Preferences))
	copy(prefs, prof.Preferences)

	a := &Agent{
		ID:            id,
		Name:          s.generateName(id),
		Tier:          tier,
		Balance:       s.rng.Between64(prof.BalanceRange[0], prof.BalanceRange[1]),
		Drones:        drones,
		MaxDrones:     s.cfg.MaxDrones,
		MaxConcurrent: s.cfg.MaxConcurrent,
		Preferences:   prefs,
		JoinedTick:    tick,
		LastSeen:      tick,
	}
	for _, k := range AllKinds {
		a.Reaction[k] = 1.0
	}
	return a
}

// SpawnPopulation creates count agents joining at tick.
func (s *Spawner) SpawnPopulation(count int, tick uint64) []*Agent {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.Spawn(tick))
	}
	return out
}

func (s *Spawner) generateName(id AgentID) string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := handles[s.rng.Intn(len(handles))]
	return fmt.Sprintf("%s%s#%04d", first, last, uint64(id)%10000)
}

// Name pools for procedural handles.
var firstNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Kael", "Leif", "Magnus", "Nils", "Oswin", "Quinn", "Rowan",
	"Iris", "Juno", "Kira", "Lena", "Mira", "Nessa", "Petra",
}

var handles = []string{
	"Voss", "Thorn", "Ash", "Iron", "Storm", "Frost", "Hearth",
	"Copper", "Raven", "Silver", "Wolf", "Stone", "Deep", "Bright",
	"Red", "Wind", "Marsh", "Gold", "Night", "River", "Steel", "Ember",
}
