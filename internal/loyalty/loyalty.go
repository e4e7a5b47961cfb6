// Package loyalty resolves loyalty tiers. Card mutation (points,
// upgrades) lives outside the checkout core; only the discount and
// points lookups are needed here.
package loyalty

import (
	"github.com/shopspring/decimal"

	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
)

// Tiers is the program's tier table, lowest first.
var Tiers = []models.LoyaltyTier{
	{Name: "bronze", MinimumPoints: 0, DiscountPercentage: decimal.NewFromInt(5), PointsMultiplier: decimal.NewFromInt(1)},
	{Name: "silver", MinimumPoints: 1000, DiscountPercentage: decimal.NewFromInt(10), PointsMultiplier: decimal.NewFromFloat(1.2)},
	{Name: "gold", MinimumPoints: 3000, DiscountPercentage: decimal.NewFromInt(15), PointsMultiplier: decimal.NewFromFloat(1.5)},
	{Name: "platinum", MinimumPoints: 5000, DiscountPercentage: decimal.NewFromInt(20), PointsMultiplier: decimal.NewFromInt(2)},
}

// TierByName returns the named tier, or false if unknown.
func TierByName(name string) (models.LoyaltyTier, bool) {
	for _, t := range Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return models.LoyaltyTier{}, false
}

// Discount returns the discount percentage for a card's tier.
// No card, or an unknown tier, means no discount.
func Discount(card *models.LoyaltyCard) decimal.Decimal {
	if card == nil {
		return decimal.Zero
	}
	tier, ok := TierByName(card.Tier)
	if !ok {
		return decimal.Zero
	}
	return tier.DiscountPercentage
}

// PointsEarned returns the loyalty points for a finalized total:
// one point per unit of currency, rounded down.
func PointsEarned(total decimal.Decimal) int {
	return int(total.IntPart())
}
