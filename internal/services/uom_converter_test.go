package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUnit(t *testing.T) {
	cases := map[string]string{
		" KG ":   "kg",
		"gr":     "g",
		"Liters": "l",
		"lt":     "l",
		"мл":     "ml",
		"piece":  "piece",
		"":       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeUnit(in), "unit %q", in)
	}
}

func TestConvertQuantity(t *testing.T) {
	tests := []struct {
		name     string
		qty      float64
		from, to string
		want     float64
		ok       bool
	}{
		{"grams to kilograms", 500, "g", "kg", 0.5, true},
		{"kilograms to grams", 1.25, "kg", "g", 1250, true},
		{"milliliters to liters", 750, "ml", "l", 0.75, true},
		{"alias on both sides", 2, "кг", "gram", 2000, true},
		{"same unit", 3, "kg", "KG", 3, true},
		{"cross kind passes through", 2, "l", "kg", 2, false},
		{"unknown unit passes through", 4, "box", "kg", 4, false},
		{"empty unit passes through", 4, "", "kg", 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ConvertQuantity(tt.qty, tt.from, tt.to)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestToKilograms(t *testing.T) {
	assert.InDelta(t, 0.2, ToKilograms(200, "g"), 1e-9)
	assert.InDelta(t, 1.5, ToKilograms(1.5, "l"), 1e-9, "liters are costed as kilograms")
	assert.InDelta(t, 0.453592, ToKilograms(1, "lb"), 1e-9)
	assert.Equal(t, 7.0, ToKilograms(7, "piece"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindMass, KindOf("oz"))
	assert.Equal(t, KindVolume, KindOf("ml"))
	assert.Equal(t, KindUnknown, KindOf("bunch"))
}
