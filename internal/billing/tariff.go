package billing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Setting keys understood by ParseTariff.
const (
	KeyWaterBasic      = "water_basic_monthly_cost"
	KeyBillingStartDay = "billing_start_day"
	KeyBillingEndDay   = "billing_end_day"
)

const (
	waterTiers  = 5
	sewageTiers = 4
)

// Tier is one tariff block. Limit is the cumulative upper bound in kL,
// measured from zero usage. The last tier of a schedule is unbounded and its
// Limit is ignored.
type Tier struct {
	Limit float64 `json:"limit" yaml:"limit"`
	Rate  float64 `json:"rate" yaml:"rate"`
}

// Tariff is the parsed, validated form of an owner's tariff settings.
type Tariff struct {
	WaterBasic float64           `json:"water_basic"`
	Water      [waterTiers]Tier  `json:"water"`
	Sewage     [sewageTiers]Tier `json:"sewage"`
	StartDay   int               `json:"billing_start_day"`
	EndDay     int               `json:"billing_end_day"`
}

// WaterLimitKey returns the setting key for the cumulative limit of water block n (1-based).
func WaterLimitKey(n int) string { return fmt.Sprintf("water_block_%d_limit", n) }

// WaterRateKey returns the setting key for the rate of water block n (1-based).
func WaterRateKey(n int) string { return fmt.Sprintf("water_block_%d_rate", n) }

// SewageLimitKey returns the setting key for the cumulative limit of sewage block n (1-based).
func SewageLimitKey(n int) string { return fmt.Sprintf("sewage_block_%d_limit", n) }

// SewageRateKey returns the setting key for the rate of sewage block n (1-based).
func SewageRateKey(n int) string { return fmt.Sprintf("sewage_block_%d_rate", n) }

// DefaultTariff is the tariff applied when an owner has not configured one.
func DefaultTariff() Tariff {
	return Tariff{
		WaterBasic: 91.79,
		Water: [waterTiers]Tier{
			{Limit: 6, Rate: 29.67},
			{Limit: 15, Rate: 57.32},
			{Limit: 25, Rate: 68.50},
			{Limit: 35, Rate: 95.12},
			{Rate: 133.43},
		},
		Sewage: [sewageTiers]Tier{
			{Limit: 6, Rate: 22.25},
			{Limit: 15, Rate: 42.99},
			{Limit: 25, Rate: 51.38},
			{Rate: 71.34},
		},
		StartDay: 1,
		EndDay:   31,
	}
}

// DefaultSettings returns the full settings map for a new owner.
func DefaultSettings() map[string]string {
	return DefaultTariff().Settings()
}

// SettingKeys lists every setting key ParseTariff reads, in a stable order.
func SettingKeys() []string {
	keys := []string{KeyWaterBasic}
	for n := 1; n < waterTiers; n++ {
		keys = append(keys, WaterLimitKey(n))
	}
	for n := 1; n <= waterTiers; n++ {
		keys = append(keys, WaterRateKey(n))
	}
	for n := 1; n < sewageTiers; n++ {
		keys = append(keys, SewageLimitKey(n))
	}
	for n := 1; n <= sewageTiers; n++ {
		keys = append(keys, SewageRateKey(n))
	}
	return append(keys, KeyBillingStartDay, KeyBillingEndDay)
}

// IsSettingKey reports whether key is one of SettingKeys.
func IsSettingKey(key string) bool {
	for _, k := range SettingKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// Settings renders t back into the string-encoded settings map.
func (t Tariff) Settings() map[string]string {
	out := map[string]string{
		KeyWaterBasic:      formatSetting(t.WaterBasic),
		KeyBillingStartDay: strconv.Itoa(t.StartDay),
		KeyBillingEndDay:   strconv.Itoa(t.EndDay),
	}
	for i, tier := range t.Water {
		if i < waterTiers-1 {
			out[WaterLimitKey(i+1)] = formatSetting(tier.Limit)
		}
		out[WaterRateKey(i+1)] = formatSetting(tier.Rate)
	}
	for i, tier := range t.Sewage {
		if i < sewageTiers-1 {
			out[SewageLimitKey(i+1)] = formatSetting(tier.Limit)
		}
		out[SewageRateKey(i+1)] = formatSetting(tier.Rate)
	}
	return out
}

// ParseTariff converts a settings map into a Tariff.
//
// Absent keys (missing, empty or blank) take their default value. The
// unbounded last tier inherits the rate of the tier before it when its own
// rate is absent and the tier before it is set; with both absent it takes its
// own default. A present value that is not a finite, non-negative number
// is a configuration error; so are bounded limits that do not increase.
func ParseTariff(settings map[string]string) (Tariff, error) {
	def := DefaultTariff()
	var t Tariff
	var err error

	if t.WaterBasic, err = floatSetting(settings, KeyWaterBasic, def.WaterBasic); err != nil {
		return Tariff{}, err
	}

	for i := 0; i < waterTiers; i++ {
		n := i + 1
		if i < waterTiers-1 {
			if t.Water[i].Limit, err = floatSetting(settings, WaterLimitKey(n), def.Water[i].Limit); err != nil {
				return Tariff{}, err
			}
		}
		fallback := def.Water[i].Rate
		if _, set := lookup(settings, WaterRateKey(n-1)); i == waterTiers-1 && set {
			fallback = t.Water[i-1].Rate
		}
		if t.Water[i].Rate, err = floatSetting(settings, WaterRateKey(n), fallback); err != nil {
			return Tariff{}, err
		}
	}

	for i := 0; i < sewageTiers; i++ {
		n := i + 1
		if i < sewageTiers-1 {
			if t.Sewage[i].Limit, err = floatSetting(settings, SewageLimitKey(n), def.Sewage[i].Limit); err != nil {
				return Tariff{}, err
			}
		}
		fallback := def.Sewage[i].Rate
		if _, set := lookup(settings, SewageRateKey(n-1)); i == sewageTiers-1 && set {
			fallback = t.Sewage[i-1].Rate
		}
		if t.Sewage[i].Rate, err = floatSetting(settings, SewageRateKey(n), fallback); err != nil {
			return Tariff{}, err
		}
	}

	if err := checkLimits("water", t.Water[:]); err != nil {
		return Tariff{}, err
	}
	if err := checkLimits("sewage", t.Sewage[:]); err != nil {
		return Tariff{}, err
	}

	if t.StartDay, err = daySetting(settings, KeyBillingStartDay, def.StartDay); err != nil {
		return Tariff{}, err
	}
	if t.EndDay, err = daySetting(settings, KeyBillingEndDay, def.EndDay); err != nil {
		return Tariff{}, err
	}
	return t, nil
}

func lookup(settings map[string]string, key string) (string, bool) {
	raw, ok := settings[key]
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func floatSetting(settings map[string]string, key string, fallback float64) (float64, error) {
	raw, ok := lookup(settings, key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidSetting, key, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%q is not finite", ErrInvalidSetting, key, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s=%q must not be negative", ErrInvalidSetting, key, raw)
	}
	return v, nil
}

func daySetting(settings map[string]string, key string, fallback int) (int, error) {
	raw, ok := lookup(settings, key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidBillingDay, key, raw)
	}
	if err := validateBillingDay(key, v); err != nil {
		return 0, err
	}
	return v, nil
}

// checkLimits requires the bounded limits of a schedule to strictly increase.
func checkLimits(utility string, tiers []Tier) error {
	prev := 0.0
	for i, tier := range tiers[:len(tiers)-1] {
		if tier.Limit <= prev {
			return fmt.Errorf("%w: %s block %d limit %g must be greater than %g",
				ErrInvalidSetting, utility, i+1, tier.Limit, prev)
		}
		prev = tier.Limit
	}
	return nil
}

func formatSetting(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
