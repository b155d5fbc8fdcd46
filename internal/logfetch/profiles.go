package logfetch

import (
	"time"

	"github.com/chainscope/chainscope/internal/chains"
)

// Profile bundles the batch sizing and convergence targets for one
// (activity, tier) pair.
type Profile struct {
	Name                 string
	InitialBatchSize     uint64
	MinBatchSize         uint64
	MaxBatchSize         uint64
	TargetDuration       time.Duration
	TargetLogsPerRequest int
	FastMultiplier       float64
	SlowMultiplier       float64
	// FastResponse is the duration under which a low-yield request grows the
	// range; SlowResponse is the duration over which any request shrinks it.
	FastResponse time.Duration
	SlowResponse time.Duration
}

type profileKey struct {
	activity chains.Activity
	tier     chains.Tier
}

// profiles covers the activity x tier cross product. Free-tier profiles are
// pinned to tiny ranges by the provider's hard 10-block cap; paid tiers open
// up with density-dependent targets.
var profiles = map[profileKey]Profile{
	// ultra-high density (bsc, polygon, base, arbitrum)
	{chains.ActivityUltraHigh, chains.TierFree}:    {Name: "ultra-high/free", InitialBatchSize: 5, MinBatchSize: 1, MaxBatchSize: 10, TargetDuration: 4 * time.Second, TargetLogsPerRequest: 2000, FastMultiplier: 1.5, SlowMultiplier: 0.5, FastResponse: time.Second, SlowResponse: 8 * time.Second},
	{chains.ActivityUltraHigh, chains.TierPayg}:    {Name: "ultra-high/payg", InitialBatchSize: 50, MinBatchSize: 5, MaxBatchSize: 500, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 5000, FastMultiplier: 2, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 10 * time.Second},
	{chains.ActivityUltraHigh, chains.TierGrowth}:  {Name: "ultra-high/growth", InitialBatchSize: 100, MinBatchSize: 10, MaxBatchSize: 2000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 8000, FastMultiplier: 2, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 12 * time.Second},
	{chains.ActivityUltraHigh, chains.TierPremium}: {Name: "ultra-high/premium", InitialBatchSize: 200, MinBatchSize: 20, MaxBatchSize: 5000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 9000, FastMultiplier: 2, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 15 * time.Second},

	// high density (ethereum, optimism)
	{chains.ActivityHigh, chains.TierFree}:    {Name: "high/free", InitialBatchSize: 8, MinBatchSize: 1, MaxBatchSize: 10, TargetDuration: 4 * time.Second, TargetLogsPerRequest: 2000, FastMultiplier: 1.5, SlowMultiplier: 0.5, FastResponse: time.Second, SlowResponse: 8 * time.Second},
	{chains.ActivityHigh, chains.TierPayg}:    {Name: "high/payg", InitialBatchSize: 100, MinBatchSize: 10, MaxBatchSize: 1000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 5000, FastMultiplier: 2, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 10 * time.Second},
	{chains.ActivityHigh, chains.TierGrowth}:  {Name: "high/growth", InitialBatchSize: 200, MinBatchSize: 20, MaxBatchSize: 5000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 8000, FastMultiplier: 2.5, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 12 * time.Second},
	{chains.ActivityHigh, chains.TierPremium}: {Name: "high/premium", InitialBatchSize: 500, MinBatchSize: 50, MaxBatchSize: 10000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 9000, FastMultiplier: 2.5, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 15 * time.Second},

	// medium density (avalanche, linea, scroll, zksync)
	{chains.ActivityMedium, chains.TierFree}:    {Name: "medium/free", InitialBatchSize: 10, MinBatchSize: 2, MaxBatchSize: 10, TargetDuration: 4 * time.Second, TargetLogsPerRequest: 1500, FastMultiplier: 1.5, SlowMultiplier: 0.5, FastResponse: time.Second, SlowResponse: 8 * time.Second},
	{chains.ActivityMedium, chains.TierPayg}:    {Name: "medium/payg", InitialBatchSize: 300, MinBatchSize: 20, MaxBatchSize: 2000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 4000, FastMultiplier: 2.5, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 10 * time.Second},
	{chains.ActivityMedium, chains.TierGrowth}:  {Name: "medium/growth", InitialBatchSize: 500, MinBatchSize: 50, MaxBatchSize: 10000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 6000, FastMultiplier: 3, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 12 * time.Second},
	{chains.ActivityMedium, chains.TierPremium}: {Name: "medium/premium", InitialBatchSize: 1000, MinBatchSize: 100, MaxBatchSize: 20000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 8000, FastMultiplier: 3, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 15 * time.Second},

	// low density (gnosis, celo, moonbeam)
	{chains.ActivityLow, chains.TierFree}:    {Name: "low/free", InitialBatchSize: 10, MinBatchSize: 2, MaxBatchSize: 10, TargetDuration: 4 * time.Second, TargetLogsPerRequest: 1000, FastMultiplier: 2, SlowMultiplier: 0.5, FastResponse: time.Second, SlowResponse: 8 * time.Second},
	{chains.ActivityLow, chains.TierPayg}:    {Name: "low/payg", InitialBatchSize: 1000, MinBatchSize: 50, MaxBatchSize: 5000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 3000, FastMultiplier: 3, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 10 * time.Second},
	{chains.ActivityLow, chains.TierGrowth}:  {Name: "low/growth", InitialBatchSize: 2000, MinBatchSize: 100, MaxBatchSize: 20000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 4000, FastMultiplier: 4, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 12 * time.Second},
	{chains.ActivityLow, chains.TierPremium}: {Name: "low/premium", InitialBatchSize: 5000, MinBatchSize: 200, MaxBatchSize: 50000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 6000, FastMultiplier: 4, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 15 * time.Second},

	// legacy chains (fantom): sparse recent activity, long quiet stretches
	{chains.ActivityLegacy, chains.TierFree}:    {Name: "legacy/free", InitialBatchSize: 10, MinBatchSize: 2, MaxBatchSize: 10, TargetDuration: 4 * time.Second, TargetLogsPerRequest: 500, FastMultiplier: 2, SlowMultiplier: 0.5, FastResponse: time.Second, SlowResponse: 8 * time.Second},
	{chains.ActivityLegacy, chains.TierPayg}:    {Name: "legacy/payg", InitialBatchSize: 2000, MinBatchSize: 100, MaxBatchSize: 10000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 2000, FastMultiplier: 4, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 10 * time.Second},
	{chains.ActivityLegacy, chains.TierGrowth}:  {Name: "legacy/growth", InitialBatchSize: 5000, MinBatchSize: 200, MaxBatchSize: 50000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 3000, FastMultiplier: 5, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 12 * time.Second},
	{chains.ActivityLegacy, chains.TierPremium}: {Name: "legacy/premium", InitialBatchSize: 10000, MinBatchSize: 500, MaxBatchSize: 100000, TargetDuration: 5 * time.Second, TargetLogsPerRequest: 4000, FastMultiplier: 5, SlowMultiplier: 0.5, FastResponse: 1500 * time.Millisecond, SlowResponse: 15 * time.Second},
}

// ProfileFor resolves the fetch profile for an activity class and tier.
func ProfileFor(activity chains.Activity, tier chains.Tier) Profile {
	if p, ok := profiles[profileKey{activity, tier}]; ok {
		return p
	}
	// Unknown combinations fall back to the most conservative row.
	return profiles[profileKey{chains.ActivityMedium, chains.TierFree}]
}
