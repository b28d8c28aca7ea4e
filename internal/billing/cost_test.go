package billing

import (
	"math"
	"testing"
)

const eps = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestTieredCost_BlockBoundary(t *testing.T) {
	tariff := DefaultTariff()

	at := TieredCost(6, tariff)
	if !approx(at.WaterUsage, 178.02) {
		t.Fatalf("water usage at 6 kL: got %v, want 178.02", at.WaterUsage)
	}

	over := TieredCost(6.001, tariff)
	want := 178.02 + 0.001*57.32
	if !approx(over.WaterUsage, want) {
		t.Fatalf("water usage at 6.001 kL: got %v, want %v", over.WaterUsage, want)
	}
}

func TestTieredCost_Blocks(t *testing.T) {
	tariff := DefaultTariff()

	tests := []struct {
		name       string
		usage      float64
		wantWater  float64
		wantSewage float64
	}{
		{"zero", 0, 0, 0},
		{"inside first block", 4, 4 * 29.67, 4 * 22.25},
		{"second block", 10, 6*29.67 + 4*57.32, 6*22.25 + 4*42.99},
		{"exactly fourth limit", 35, 6*29.67 + 9*57.32 + 10*68.50 + 10*95.12, 6*22.25 + 9*42.99 + 10*51.38 + 10*71.34},
		{"unbounded block", 40, 6*29.67 + 9*57.32 + 10*68.50 + 10*95.12 + 5*133.43, 6*22.25 + 9*42.99 + 10*51.38 + 15*71.34},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := TieredCost(tt.usage, tariff)
			if !approx(c.WaterUsage, tt.wantWater) {
				t.Errorf("water usage: got %v, want %v", c.WaterUsage, tt.wantWater)
			}
			if !approx(c.Sewage, tt.wantSewage) {
				t.Errorf("sewage: got %v, want %v", c.Sewage, tt.wantSewage)
			}
			if c.WaterBasic != tariff.WaterBasic {
				t.Errorf("water basic: got %v, want %v", c.WaterBasic, tariff.WaterBasic)
			}
		})
	}
}

func TestTieredCost_Decomposition(t *testing.T) {
	tariff := DefaultTariff()
	for u := 0.0; u <= 80; u += 0.37 {
		c := TieredCost(u, tariff)
		if c.Total != tariff.WaterBasic+c.WaterUsage+c.Sewage {
			t.Fatalf("usage %v: total %v != %v + %v + %v", u, c.Total, tariff.WaterBasic, c.WaterUsage, c.Sewage)
		}
	}
}

func TestTieredCost_Monotonic(t *testing.T) {
	tariff := DefaultTariff()
	prev := TieredCost(0, tariff).Total
	for u := 0.05; u <= 80; u += 0.05 {
		cur := TieredCost(u, tariff).Total
		if cur < prev {
			t.Fatalf("cost decreased at usage %v: %v < %v", u, cur, prev)
		}
		prev = cur
	}
}

func TestTieredCost_NegativeUsageChargesBasicOnly(t *testing.T) {
	tariff := DefaultTariff()
	c := TieredCost(-3, tariff)
	if c.WaterUsage != 0 || c.Sewage != 0 {
		t.Fatalf("expected no usage charges, got %+v", c)
	}
	if c.Total != tariff.WaterBasic {
		t.Fatalf("expected total to equal basic charge, got %v", c.Total)
	}
}

func TestTieredCost_CustomSchedule(t *testing.T) {
	tariff := DefaultTariff()
	tariff.WaterBasic = 0
	tariff.Water = [5]Tier{{10, 1}, {20, 2}, {30, 3}, {40, 4}, {0, 5}}
	tariff.Sewage = [4]Tier{{5, 1}, {10, 1}, {15, 1}, {0, 10}}

	c := TieredCost(45, tariff)
	if !approx(c.WaterUsage, 10*1+10*2+10*3+10*4+5*5) {
		t.Errorf("water usage: got %v", c.WaterUsage)
	}
	if !approx(c.Sewage, 15*1+30*10) {
		t.Errorf("sewage: got %v", c.Sewage)
	}
}
