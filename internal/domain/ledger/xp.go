package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

// minBaseXP is the floor under base_xp regardless of how small price_cents is.
const minBaseXP = 10

// streakBuckets maps a minimum current_streak to the multiplier it unlocks,
// checked from the highest bucket down.
var streakBuckets = []struct {
	minStreak  int64
	multiplier float64
}{
	{30, 1.50},
	{14, 1.30},
	{7, 1.20},
	{3, 1.10},
	{0, 1.00},
}

// Computation is the full trail behind one XP award, matching the columns
// of xp_ledger so a row can be built directly from it.
type Computation struct {
	BaseXP           int64
	DecayFactor      decimal.Decimal
	EffectiveXP      int64
	StreakMultiplier decimal.Decimal
	FinalXP          int64
}

// BaseXP returns max(10, floor(price_cents/100)).
func BaseXP(priceCents int64) int64 {
	base := priceCents / 100
	if base < minBaseXP {
		return minBaseXP
	}
	return base
}

// DecayFactor returns 1/(1+log10(1+total_xp/1000)) truncated to 4 decimal
// places. totalXP is the user's xp_total *before* this award.
func DecayFactor(totalXP int64) decimal.Decimal {
	ratio := float64(totalXP) / 1000.0
	raw := 1.0 / (1.0 + math.Log10(1.0+ratio))
	return decimal.NewFromFloat(raw).Truncate(4)
}

// StreakMultiplier returns the multiplier unlocked by currentStreak, one of
// {1.00, 1.10, 1.20, 1.30, 1.50}.
func StreakMultiplier(currentStreak int64) decimal.Decimal {
	for _, b := range streakBuckets {
		if currentStreak >= b.minStreak {
			return decimal.NewFromFloat(b.multiplier)
		}
	}
	return decimal.NewFromFloat(1.00)
}

// Compute runs the full base -> decay -> streak -> final pipeline, truncating
// toward zero (never rounding up) at each integer step, and clamps final_xp
// at 2x base_xp so a long streak can never more than double an award.
func Compute(priceCents, totalXPBefore, currentStreak int64) Computation {
	base := BaseXP(priceCents)
	decay := DecayFactor(totalXPBefore)
	effective := decimal.NewFromInt(base).Mul(decay).Truncate(0).IntPart()

	streak := StreakMultiplier(currentStreak)
	final := decimal.NewFromInt(effective).Mul(streak).Truncate(0).IntPart()

	if cap := base * 2; final > cap {
		final = cap
	}

	return Computation{
		BaseXP:           base,
		DecayFactor:      decay,
		EffectiveXP:      effective,
		StreakMultiplier: streak,
		FinalXP:          final,
	}
}
