package billing

// Cost is a bill broken into its components. Total is always
// WaterBasic + WaterUsage + Sewage.
type Cost struct {
	WaterBasic float64 `json:"water_basic"`
	WaterUsage float64 `json:"water_usage"`
	Sewage     float64 `json:"sewage"`
	Total      float64 `json:"total"`
}

// TieredCost prices usage kL against the tariff. Water and sewage are priced
// independently over the same usage; the basic charge applies regardless of
// usage.
func TieredCost(usage float64, t Tariff) Cost {
	c := Cost{
		WaterBasic: t.WaterBasic,
		WaterUsage: blockCost(usage, t.Water[:]),
		Sewage:     blockCost(usage, t.Sewage[:]),
	}
	c.Total = c.WaterBasic + c.WaterUsage + c.Sewage
	return c
}

// blockCost walks the tiers in order. Each bounded tier takes
// min(remaining, limit-previousLimit) at its rate, so usage that lands
// exactly on a limit is billed entirely in the lower block. The last tier
// absorbs whatever is left.
func blockCost(usage float64, tiers []Tier) float64 {
	remaining := usage
	previousLimit := 0.0
	cost := 0.0

	for i, tier := range tiers {
		if remaining <= 0 {
			break
		}
		if i == len(tiers)-1 {
			cost += remaining * tier.Rate
			break
		}
		inBlock := min(remaining, tier.Limit-previousLimit)
		cost += inBlock * tier.Rate
		remaining -= inBlock
		previousLimit = tier.Limit
	}
	return cost
}
