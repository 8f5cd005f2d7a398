package agents

// TierProfile holds the fixed tables for one tier.
type TierProfile struct {
	SpawnWeight  float64           // Relative share of new joins
	SuccessRate  [NumKinds]float64 // Per-kind success probability
	Preferences  []ActivityKind    // Most preferred first
	BalanceRange [2]int64          // Starting RP, inclusive
	DroneRange   [2]int            // Starting drones, inclusive
}

// tierProfiles is indexed by Tier. Novice agents are the bulk of joins;
// masters are rare and nearly always succeed.
var tierProfiles = [NumTiers]TierProfile{
	TierNovice: {
		SpawnWeight:  40,
		SuccessRate:  [NumKinds]float64{0.40, 0.30, 0.25, 0.20},
		Preferences:  []ActivityKind{KindGather, KindTrade, KindBuild, KindCombat},
		BalanceRange: [2]int64{50, 150},
		DroneRange:   [2]int{0, 1},
	},
	TierApprentice: {
		SpawnWeight:  25,
		SuccessRate:  [NumKinds]float64{0.55, 0.45, 0.40, 0.35},
		Preferences:  []ActivityKind{KindGather, KindBuild, KindTrade, KindCombat},
		BalanceRange: [2]int64{100, 250},
		DroneRange:   [2]int{0, 2},
	},
	TierAdept: {
		SpawnWeight:  17,
		SuccessRate:  [NumKinds]float64{0.65, 0.58, 0.52, 0.48},
		Preferences:  []ActivityKind{KindBuild, KindGather, KindTrade, KindCombat},
		BalanceRange: [2]int64{200, 400},
		DroneRange:   [2]int{1, 2},
	},
	TierExpert: {
		SpawnWeight:  10,
		SuccessRate:  [NumKinds]float64{0.75, 0.70, 0.65, 0.60},
		Preferences:  []ActivityKind{KindTrade, KindBuild, KindCombat, KindGather},
		BalanceRange: [2]int64{350, 600},
		DroneRange:   [2]int{1, 3},
	},
	TierElite: {
		SpawnWeight:  7,
		SuccessRate:  [NumKinds]float64{0.85, 0.80, 0.78, 0.75},
		Preferences:  []ActivityKind{KindCombat, KindTrade, KindBuild, KindGather},
		BalanceRange: [2]int64{500, 900},
		DroneRange:   [2]int{2, 4},
	},
	TierMaster: {
		SpawnWeight:  1,
		SuccessRate:  [NumKinds]float64{0.95, 0.93, 0.92, 0.90},
		Preferences:  []ActivityKind{KindCombat, KindBuild, KindTrade, KindGather},
		BalanceRange: [2]int64{800, 1500},
		DroneRange:   [2]int{3, 5},
	},
}

// TierProfileFor returns the profile for t. Unknown tiers fall back to novice.
func TierProfileFor(t Tier) TierProfile {
	if int(t) >= NumTiers {
		return tierProfiles[TierNovice]
	}
	return tierProfiles[t]
}

// SpawnWeights returns the tier spawn weights in tier order.
func SpawnWeights() []float64 {
	w := make([]float64, NumTiers)
	for i, p := range tierProfiles {
		w[i] = p.SpawnWeight
	}
	return w
}
